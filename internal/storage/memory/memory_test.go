package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Auditor = (*Backend)(nil)
)

func storedVehicle(preset string) *core.StoredVehicle {
	return &core.StoredVehicle{
		UUID:     uuid.New(),
		Preset:   preset,
		Design:   "basic_car",
		Type:     "land",
		Owner:    uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Locked:   true,
		Level:    "world",
		Position: core.Position3D{X: 10, Y: 64, Z: -3.5},
		Data:     []byte{0x0a, 0x00, 0x00},
		SavedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadDelete(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	v1 := storedVehicle("Basic Car")
	v2 := storedVehicle("Raft")
	require.NoError(t, b.SaveVehicle(v1))
	require.NoError(t, b.SaveVehicle(v2))

	// Saving again replaces.
	v1.Locked = false
	require.NoError(t, b.SaveVehicle(v1))

	got, err := b.LoadVehicles()
	require.NoError(t, err)
	require.Len(t, got, 2)

	stored, ok := b.GetVehicle(v1.UUID)
	require.True(t, ok)
	assert.False(t, stored.Locked)

	require.NoError(t, b.DeleteVehicle(v2.UUID))
	require.NoError(t, b.DeleteVehicle(uuid.New()))

	got, _ = b.LoadVehicles()
	require.Len(t, got, 1)
	assert.Equal(t, v1.UUID, got[0].UUID)

	require.NoError(t, b.Close())
	assert.Empty(t, b.GetExportedFilePath())
}

func TestSaveVehicle_CopiesData(t *testing.T) {
	b := New(config.MemoryConfig{})
	v := storedVehicle("Basic Car")
	require.NoError(t, b.SaveVehicle(v))

	v.Data[0] = 0xff

	stored, _ := b.GetVehicle(v.UUID)
	assert.Equal(t, byte(0x0a), stored.Data[0])
}

func TestLoadVehicles_Ordered(t *testing.T) {
	b := New(config.MemoryConfig{})
	for i := 0; i < 10; i++ {
		require.NoError(t, b.SaveVehicle(storedVehicle(fmt.Sprintf("v%d", i))))
	}

	got, _ := b.LoadVehicles()
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].UUID.String(), got[i].UUID.String())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.MemoryConfig{OutputDir: dir, CompressOutput: compress}

			b := New(cfg)
			require.NoError(t, b.Init())
			v := storedVehicle("Basic Car")
			unowned := storedVehicle("Raft")
			unowned.Owner = uuid.NullUUID{}
			unowned.Locked = false
			require.NoError(t, b.SaveVehicle(v))
			require.NoError(t, b.SaveVehicle(unowned))
			require.NoError(t, b.Close())

			want := compressedSnapshotName
			if !compress {
				want = snapshotName
			}
			assert.Equal(t, filepath.Join(dir, want), b.GetExportedFilePath())
			_, err := os.Stat(b.GetExportedFilePath())
			require.NoError(t, err)

			reopened := New(cfg)
			require.NoError(t, reopened.Init())

			got, ok := reopened.GetVehicle(v.UUID)
			require.True(t, ok)
			assert.Equal(t, *v, got)

			got, ok = reopened.GetVehicle(unowned.UUID)
			require.True(t, ok)
			assert.False(t, got.Owner.Valid)
		})
	}
}

func TestSnapshot_SwitchingCompressionRemovesStale(t *testing.T) {
	dir := t.TempDir()

	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.SaveVehicle(storedVehicle("old")))
	require.NoError(t, b.Close())

	b = New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})
	require.NoError(t, b.Init())
	require.NoError(t, b.DeleteVehicle(mustOnly(t, b).UUID))
	require.NoError(t, b.Close())

	_, err := os.Stat(filepath.Join(dir, compressedSnapshotName))
	assert.True(t, os.IsNotExist(err))

	b = New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.Init())
	got, _ := b.LoadVehicles()
	assert.Empty(t, got)
}

func mustOnly(t *testing.T, b *Backend) core.StoredVehicle {
	t.Helper()
	got, err := b.LoadVehicles()
	require.NoError(t, err)
	require.Len(t, got, 1)
	return got[0]
}

func TestInit_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotName), []byte("{not json"), 0644))

	b := New(config.MemoryConfig{OutputDir: dir})
	require.Error(t, b.Init())
}

func TestInit_WrongSnapshotVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotName), []byte(`{"version": 99, "vehicles": []}`), 0644))

	b := New(config.MemoryConfig{OutputDir: dir})
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 99")
}

func TestRecordCommand_Bounded(t *testing.T) {
	b := New(config.MemoryConfig{})
	for i := 0; i < maxCommands+5; i++ {
		require.NoError(t, b.RecordCommand(&core.CommandEvent{Command: fmt.Sprintf("c%d", i)}))
	}

	got := b.Commands()
	require.Len(t, got, maxCommands)
	assert.Equal(t, "c5", got[0].Command)
	assert.Equal(t, fmt.Sprintf("c%d", maxCommands+4), got[len(got)-1].Command)
}
