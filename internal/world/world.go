// Package world tracks the vehicle entities that currently exist on the server.
// The host owns the real entities; this registry holds each one's record, its
// position and who sits in it.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/ownership"
	"github.com/OCAP2/vehicles/internal/vehicle"
)

var (
	ErrNoSuchEntity = errors.New("no such entity")
	ErrDuplicate    = errors.New("vehicle already exists in the world")
	ErrLocked       = errors.New("vehicle is locked")
	ErrSeatTaken    = errors.New("seat is taken")
	ErrNoFreeSeat   = errors.New("no free passenger seat")
	ErrNotSeated    = errors.New("player is not seated in this vehicle")
)

// EntityID is the host's handle for a spawned entity.
type EntityID int64

// Position is a location inside a named level.
type Position struct {
	X, Y, Z float64
	Level   string
}

// Entity is the narrow view of a spawned vehicle that callers get.
type Entity interface {
	ID() EntityID
	// Record returns a copy of the vehicle's state. Mutate through Registry.Update.
	Record() *vehicle.Record
	Position() Position
	// Driver returns the player in the driver seat.
	Driver() (uuid.UUID, bool)
	// Passengers returns the occupied passenger seats, 1-based.
	Passengers() map[int]uuid.UUID
}

type entity struct {
	id         EntityID
	record     *vehicle.Record
	pos        Position
	driver     uuid.NullUUID
	passengers []uuid.NullUUID
}

func (e *entity) snapshot() *snapshot {
	s := &snapshot{id: e.id, record: e.record.Clone(), pos: e.pos, driver: e.driver}
	s.passengers = make(map[int]uuid.UUID)
	for i, p := range e.passengers {
		if p.Valid {
			s.passengers[i+1] = p.UUID
		}
	}
	return s
}

// snapshot is the immutable Entity handed out by the registry.
type snapshot struct {
	id         EntityID
	record     *vehicle.Record
	pos        Position
	driver     uuid.NullUUID
	passengers map[int]uuid.UUID
}

func (s *snapshot) ID() EntityID            { return s.id }
func (s *snapshot) Record() *vehicle.Record { return s.record.Clone() }
func (s *snapshot) Position() Position      { return s.pos }
func (s *snapshot) Driver() (uuid.UUID, bool) {
	return s.driver.UUID, s.driver.Valid
}
func (s *snapshot) Passengers() map[int]uuid.UUID {
	out := make(map[int]uuid.UUID, len(s.passengers))
	for k, v := range s.passengers {
		out[k] = v
	}
	return out
}

// Registry holds every spawned vehicle.
type Registry struct {
	mu       sync.RWMutex
	nextID   EntityID
	entities map[EntityID]*entity
	byUUID   map[uuid.UUID]EntityID
	// removed remembers vehicles deleted since the last save.
	removed map[uuid.UUID]struct{}
	// dirty maps vehicles changed since the last save to the revision of
	// their latest change.
	dirty map[uuid.UUID]uint64
	rev   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[EntityID]*entity),
		byUUID:   make(map[uuid.UUID]EntityID),
		removed:  make(map[uuid.UUID]struct{}),
		dirty:    make(map[uuid.UUID]uint64),
	}
}

// Spawn places a vehicle in the world. The record is validated and owned by
// the registry from here on.
func (w *Registry) Spawn(r *vehicle.Record, pos Position) (Entity, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.byUUID[r.UUID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, r.UUID)
	}

	w.nextID++
	e := &entity{
		id:         w.nextID,
		record:     r.Clone(),
		pos:        pos,
		passengers: make([]uuid.NullUUID, len(r.PassengerSeats)),
	}
	w.entities[e.id] = e
	w.byUUID[r.UUID] = e.id
	delete(w.removed, r.UUID)
	w.touch(r.UUID)
	return e.snapshot(), nil
}

// Get looks up an entity by host id.
func (w *Registry) Get(id EntityID) (Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	return e.snapshot(), true
}

// Find looks up an entity by vehicle UUID.
func (w *Registry) Find(id uuid.UUID) (Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	eid, ok := w.byUUID[id]
	if !ok {
		return nil, false
	}
	return w.entities[eid].snapshot(), true
}

// Remove deletes the entity and returns the players who were seated in it.
func (w *Registry) Remove(id EntityID) ([]uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}

	var riders []uuid.UUID
	if e.driver.Valid {
		riders = append(riders, e.driver.UUID)
	}
	for _, p := range e.passengers {
		if p.Valid {
			riders = append(riders, p.UUID)
		}
	}

	delete(w.entities, id)
	delete(w.byUUID, e.record.UUID)
	delete(w.dirty, e.record.UUID)
	w.removed[e.record.UUID] = struct{}{}
	return riders, nil
}

// All returns every entity ordered by id.
func (w *Registry) All() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]EntityID, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Entity, len(ids))
	for i, id := range ids {
		out[i] = w.entities[id].snapshot()
	}
	return out
}

// Len is the number of spawned vehicles.
func (w *Registry) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// Update runs fn against the live record of id under the registry lock. The
// change is kept only when fn succeeds and the result is still valid.
func (w *Registry) Update(id EntityID, fn func(r *vehicle.Record) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}

	work := e.record.Clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := work.Validate(); err != nil {
		return err
	}
	work.UUID = e.record.UUID
	e.record = work
	w.touch(work.UUID)
	return nil
}

// Move records a new position for id.
func (w *Registry) Move(id EntityID, pos Position) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	e.pos = pos
	w.touch(e.record.UUID)
	return nil
}

// SeatDriver puts player in the driver seat. An unowned vehicle becomes the
// player's. It reports whether that claim happened.
func (w *Registry) SeatDriver(id EntityID, player uuid.UUID) (claimed bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	if !ownership.CanEnter(e.record, player) {
		return false, ErrLocked
	}
	if e.driver.Valid && e.driver.UUID != player {
		return false, ErrSeatTaken
	}

	w.vacate(e, player)
	e.driver = uuid.NullUUID{UUID: player, Valid: true}
	if ownership.ClaimIfUnowned(e.record, player) {
		w.touch(e.record.UUID)
		return true, nil
	}
	return false, nil
}

// SeatPassenger puts player in the first free passenger seat and returns its
// 1-based index.
func (w *Registry) SeatPassenger(id EntityID, player uuid.UUID) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	if !ownership.CanEnter(e.record, player) {
		return 0, ErrLocked
	}

	free := -1
	for i, p := range e.passengers {
		if !p.Valid || p.UUID == player {
			free = i
			break
		}
	}
	if free < 0 {
		return 0, ErrNoFreeSeat
	}

	w.vacate(e, player)
	e.passengers[free] = uuid.NullUUID{UUID: player, Valid: true}
	return free + 1, nil
}

// Leave frees whichever seat player holds in id.
func (w *Registry) Leave(id EntityID, player uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	if !w.vacate(e, player) {
		return ErrNotSeated
	}
	return nil
}

// touch marks id as changed. Callers hold w.mu.
func (w *Registry) touch(id uuid.UUID) {
	w.rev++
	w.dirty[id] = w.rev
}

func (w *Registry) vacate(e *entity, player uuid.UUID) bool {
	found := false
	if e.driver.Valid && e.driver.UUID == player {
		e.driver = uuid.NullUUID{}
		found = true
	}
	for i, p := range e.passengers {
		if p.Valid && p.UUID == player {
			e.passengers[i] = uuid.NullUUID{}
			found = true
		}
	}
	return found
}
