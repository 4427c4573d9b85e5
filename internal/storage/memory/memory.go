// internal/storage/memory/memory.go
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/pkg/core"
)

// maxCommands bounds the in-memory command history.
const maxCommands = 1000

// Backend keeps vehicles in memory and snapshots them to OutputDir on close.
// With an empty OutputDir nothing touches disk.
type Backend struct {
	cfg config.MemoryConfig

	vehicles map[uuid.UUID]core.StoredVehicle
	commands []core.CommandEvent

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		vehicles: make(map[uuid.UUID]core.StoredVehicle),
	}
}

// Init restores the last snapshot, if there is one.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := readSnapshot(b.cfg.OutputDir)
	if err != nil {
		return err
	}
	for _, v := range snap {
		b.vehicles[v.UUID] = v
	}
	return nil
}

// Close writes the snapshot.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.export()
}

// SaveVehicle stores a copy of v, replacing any earlier save.
func (b *Backend) SaveVehicle(v *core.StoredVehicle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := *v
	c.Data = bytes.Clone(v.Data)
	b.vehicles[v.UUID] = c
	return nil
}

// DeleteVehicle forgets a vehicle. Unknown ids are ignored.
func (b *Backend) DeleteVehicle(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vehicles, id)
	return nil
}

// LoadVehicles returns every stored vehicle ordered by UUID.
func (b *Backend) LoadVehicles() ([]core.StoredVehicle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sorted(), nil
}

func (b *Backend) sorted() []core.StoredVehicle {
	out := make([]core.StoredVehicle, 0, len(b.vehicles))
	for _, v := range b.vehicles {
		v.Data = bytes.Clone(v.Data)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].UUID[:], out[j].UUID[:]) < 0
	})
	return out
}

// GetVehicle looks up one stored vehicle.
func (b *Backend) GetVehicle(id uuid.UUID) (core.StoredVehicle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.vehicles[id]
	return v, ok
}

// RecordCommand appends to the command history, dropping the oldest entries
// beyond maxCommands.
func (b *Backend) RecordCommand(e *core.CommandEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.commands = append(b.commands, *e)
	if over := len(b.commands) - maxCommands; over > 0 {
		b.commands = append(b.commands[:0:0], b.commands[over:]...)
	}
	return nil
}

// Commands returns the recorded command history, oldest first.
func (b *Backend) Commands() []core.CommandEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.CommandEvent, len(b.commands))
	copy(out, b.commands)
	return out
}

// GetExportedFilePath returns the path of the last snapshot written.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
