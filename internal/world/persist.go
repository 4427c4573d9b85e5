package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/vehicle"
	"github.com/OCAP2/vehicles/pkg/core"
)

var ErrIdentityMismatch = errors.New("stored uuid does not match encoded vehicle")

// LoadError is one vehicle that could not be restored.
type LoadError struct {
	UUID uuid.UUID
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("vehicle %s: %v", e.UUID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Stored converts an entity into what storage backends persist.
func Stored(e Entity, now time.Time) (*core.StoredVehicle, error) {
	r := e.Record()
	data, err := vehicle.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode vehicle %s: %w", r.UUID, err)
	}
	pos := e.Position()
	return &core.StoredVehicle{
		UUID:     r.UUID,
		Preset:   r.Name,
		Design:   r.Design,
		Type:     r.Type.String(),
		Owner:    r.Owner,
		Locked:   r.Locked,
		Level:    pos.Level,
		Position: core.Position3D{X: pos.X, Y: pos.Y, Z: pos.Z},
		Data:     data,
		SavedAt:  now,
	}, nil
}

// SaveAll writes every vehicle and the deletions since the last save.
func (w *Registry) SaveAll(b storage.Backend) (int, error) {
	return w.save(b, true)
}

// SaveChanges writes only the vehicles changed since the last save, plus
// deletions.
func (w *Registry) SaveChanges(b storage.Backend) (int, error) {
	return w.save(b, false)
}

type pendingSave struct {
	entity Entity
	rev    uint64
}

func (w *Registry) save(b storage.Backend, all bool) (int, error) {
	w.mu.Lock()
	var pending []pendingSave
	for _, e := range w.entities {
		if rev, dirty := w.dirty[e.record.UUID]; all || dirty {
			pending = append(pending, pendingSave{entity: e.snapshot(), rev: rev})
		}
	}
	removed := make([]uuid.UUID, 0, len(w.removed))
	for id := range w.removed {
		removed = append(removed, id)
	}
	w.mu.Unlock()

	now := time.Now().UTC()
	var errs []error
	saved := 0

	for _, id := range removed {
		if err := b.DeleteVehicle(id); err != nil {
			errs = append(errs, fmt.Errorf("delete vehicle %s: %w", id, err))
			continue
		}
		w.mu.Lock()
		delete(w.removed, id)
		w.mu.Unlock()
	}

	for _, p := range pending {
		sv, err := Stored(p.entity, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.SaveVehicle(sv); err != nil {
			errs = append(errs, fmt.Errorf("save vehicle %s: %w", sv.UUID, err))
			continue
		}
		saved++
		w.clean(sv.UUID, p.rev)
	}

	return saved, errors.Join(errs...)
}

// clean drops the dirty mark of id unless the vehicle changed again after
// the revision that was saved.
func (w *Registry) clean(id uuid.UUID, saved uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rev, ok := w.dirty[id]; ok && rev == saved {
		delete(w.dirty, id)
	}
}

// LoadAll restores every stored vehicle. A vehicle that cannot be decoded is
// skipped and reported as a *LoadError in the joined error; the rest still
// load.
func (w *Registry) LoadAll(b storage.Backend) (int, error) {
	stored, err := b.LoadVehicles()
	if err != nil {
		return 0, fmt.Errorf("load vehicles: %w", err)
	}

	var errs []error
	loaded := 0
	for _, sv := range stored {
		r, err := vehicle.Unmarshal(sv.Data)
		if err != nil {
			errs = append(errs, &LoadError{UUID: sv.UUID, Err: err})
			continue
		}
		if r.UUID != sv.UUID {
			errs = append(errs, &LoadError{UUID: sv.UUID, Err: ErrIdentityMismatch})
			continue
		}
		pos := Position{X: sv.Position.X, Y: sv.Position.Y, Z: sv.Position.Z, Level: sv.Level}
		if _, err := w.Spawn(r, pos); err != nil {
			errs = append(errs, &LoadError{UUID: sv.UUID, Err: err})
			continue
		}
		w.mu.Lock()
		delete(w.dirty, r.UUID)
		w.mu.Unlock()
		loaded++
	}
	return loaded, errors.Join(errs...)
}
