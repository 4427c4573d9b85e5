package storage_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/pkg/core"
)

type fakeBackend struct {
	saved    []uuid.UUID
	deleted  []uuid.UUID
	commands []string
	initErr  error
	saveErr  error
	closed   bool
}

func (f *fakeBackend) Init() error  { return f.initErr }
func (f *fakeBackend) Close() error { f.closed = true; return nil }
func (f *fakeBackend) SaveVehicle(v *core.StoredVehicle) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, v.UUID)
	return nil
}
func (f *fakeBackend) DeleteVehicle(id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeBackend) LoadVehicles() ([]core.StoredVehicle, error) {
	out := make([]core.StoredVehicle, len(f.saved))
	for i, id := range f.saved {
		out[i] = core.StoredVehicle{UUID: id}
	}
	return out, nil
}

type auditingBackend struct {
	fakeBackend
}

func (a *auditingBackend) RecordCommand(e *core.CommandEvent) error {
	a.commands = append(a.commands, e.Command)
	return nil
}

type fakeSink struct {
	saved   []uuid.UUID
	deleted []uuid.UUID
	err     error
	closed  bool
}

func (f *fakeSink) Init() error  { return f.err }
func (f *fakeSink) Close() error { f.closed = true; return nil }
func (f *fakeSink) SaveVehicle(v *core.StoredVehicle) error {
	f.saved = append(f.saved, v.UUID)
	return f.err
}
func (f *fakeSink) DeleteVehicle(id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

type auditingSink struct {
	fakeSink
	commands []string
}

func (a *auditingSink) RecordCommand(e *core.CommandEvent) error {
	a.commands = append(a.commands, e.Command)
	return nil
}

var _ storage.Backend = (*storage.Tee)(nil)
var _ storage.Auditor = (*storage.Tee)(nil)

func TestTee_ForwardsWrites(t *testing.T) {
	primary := &fakeBackend{}
	mirror := &fakeSink{}
	tee := storage.NewTee(primary, mirror)
	require.NoError(t, tee.Init())

	id := uuid.New()
	require.NoError(t, tee.SaveVehicle(&core.StoredVehicle{UUID: id}))
	require.NoError(t, tee.DeleteVehicle(id))

	assert.Equal(t, []uuid.UUID{id}, primary.saved)
	assert.Equal(t, []uuid.UUID{id}, mirror.saved)
	assert.Equal(t, []uuid.UUID{id}, primary.deleted)
	assert.Equal(t, []uuid.UUID{id}, mirror.deleted)

	require.NoError(t, tee.Close())
	assert.True(t, primary.closed)
	assert.True(t, mirror.closed)
}

func TestTee_LoadsFromPrimaryOnly(t *testing.T) {
	primary := &fakeBackend{}
	mirror := &fakeSink{}
	tee := storage.NewTee(primary, mirror)

	id := uuid.New()
	primary.saved = []uuid.UUID{id}

	got, err := tee.LoadVehicles()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].UUID)
}

func TestTee_PrimaryFailureSkipsMirrors(t *testing.T) {
	boom := errors.New("disk full")
	primary := &fakeBackend{saveErr: boom}
	mirror := &fakeSink{}
	tee := storage.NewTee(primary, mirror)

	err := tee.SaveVehicle(&core.StoredVehicle{UUID: uuid.New()})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mirror.saved)
}

func TestTee_MirrorFailureKeepsPrimaryWrite(t *testing.T) {
	boom := errors.New("connection lost")
	primary := &fakeBackend{}
	mirror := &fakeSink{err: boom}
	tee := storage.NewTee(primary, mirror)

	id := uuid.New()
	err := tee.SaveVehicle(&core.StoredVehicle{UUID: id})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []uuid.UUID{id}, primary.saved)

	err = tee.Init()
	assert.ErrorIs(t, err, boom)
}

func TestTee_PrimaryInitFailure(t *testing.T) {
	boom := errors.New("no database")
	mirror := &fakeSink{}
	tee := storage.NewTee(&fakeBackend{initErr: boom}, mirror)

	assert.ErrorIs(t, tee.Init(), boom)
}

func TestTee_RecordCommand(t *testing.T) {
	t.Run("auditing primary", func(t *testing.T) {
		primary := &auditingBackend{}
		tee := storage.NewTee(primary)
		require.NoError(t, tee.RecordCommand(&core.CommandEvent{Command: "lock"}))
		assert.Equal(t, []string{"lock"}, primary.commands)
	})

	t.Run("plain primary", func(t *testing.T) {
		primary := &fakeBackend{}
		tee := storage.NewTee(primary)
		require.NoError(t, tee.RecordCommand(&core.CommandEvent{Command: "lock"}))
		assert.Empty(t, primary.commands)
	})

	t.Run("auditing mirror", func(t *testing.T) {
		primary := &fakeBackend{}
		mirror := &auditingSink{}
		tee := storage.NewTee(primary, mirror, &fakeSink{})
		require.NoError(t, tee.RecordCommand(&core.CommandEvent{Command: "giveaway"}))
		assert.Equal(t, []string{"giveaway"}, mirror.commands)
	})
}
