// Package session keeps per-player transient state: the pending interaction a
// player queued and the seat they currently occupy. Nothing here is persisted.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/pending"
)

// DriverSeat is the seat index of the driver. Passenger seats start at 1.
const DriverSeat = 0

// Ride is the seat a player occupies.
type Ride struct {
	Entity int64
	Seat   int
}

// IsDriver reports whether the ride is the driver seat.
func (r Ride) IsDriver() bool {
	return r.Seat == DriverSeat
}

// Manager owns pending interactions and rider occupancy for connected players.
type Manager struct {
	pending *pending.Registry

	mu    sync.Mutex
	rides map[uuid.UUID]Ride
}

func NewManager() *Manager {
	return &Manager{
		pending: pending.NewRegistry(),
		rides:   make(map[uuid.UUID]Ride),
	}
}

// Key is the pending-registry key for a player.
func Key(player uuid.UUID) string {
	return player.String()
}

// Queue records an interaction to run on the player's next tap.
func (m *Manager) Queue(player uuid.UUID, kind pending.Kind, args []string) {
	m.pending.Register(Key(player), kind, args)
}

// Take consumes the player's pending interaction.
func (m *Manager) Take(player uuid.UUID) (pending.Interaction, bool) {
	return m.pending.Resolve(Key(player))
}

// Cancel drops the player's pending interaction and reports whether there was one.
func (m *Manager) Cancel(player uuid.UUID) bool {
	return m.pending.Clear(Key(player))
}

// PendingCount is the number of players waiting on a tap.
func (m *Manager) PendingCount() int {
	return m.pending.Len()
}

// OldestPending reports how long the longest-waiting player has been waiting
// on a tap.
func (m *Manager) OldestPending(now time.Time) (time.Duration, bool) {
	at, ok := m.pending.Oldest()
	if !ok {
		return 0, false
	}
	return now.Sub(at), true
}

// Board records that player sits in ride. An earlier seat is replaced.
func (m *Manager) Board(player uuid.UUID, ride Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[player] = ride
}

// Riding returns the seat player occupies.
func (m *Manager) Riding(player uuid.UUID) (Ride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[player]
	return r, ok
}

// Leave removes player from their seat and returns it.
func (m *Manager) Leave(player uuid.UUID) (Ride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[player]
	if ok {
		delete(m.rides, player)
	}
	return r, ok
}

// LeaveAll unseats everyone riding entity and returns who was unseated.
func (m *Manager) LeaveAll(entity int64) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for p, r := range m.rides {
		if r.Entity == entity {
			out = append(out, p)
			delete(m.rides, p)
		}
	}
	return out
}

// Riders is the number of seated players.
func (m *Manager) Riders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rides)
}

// Disconnect forgets everything held for player. The returned ride, if any,
// is the seat the caller must vacate in the world.
func (m *Manager) Disconnect(player uuid.UUID) (Ride, bool) {
	m.pending.Clear(Key(player))
	return m.Leave(player)
}
