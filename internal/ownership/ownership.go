// Package ownership decides the outcome of ownership and lock requests made
// against a vehicle record. It keeps no state of its own; the only mutations are
// to the record's owner and lock fields.
package ownership

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/vehicle"
)

var (
	ErrNotOwner        = errors.New("requester is not the owner")
	ErrNoOwner         = errors.New("vehicle has no owner")
	ErrAlreadyLocked   = errors.New("vehicle is already locked")
	ErrAlreadyUnlocked = errors.New("vehicle is already unlocked")
	ErrNoTarget        = errors.New("no vehicle to act on")
	ErrUnknownAction   = errors.New("unknown action")
)

// Action is a request that can be resolved against a record.
type Action int

const (
	ActionRemove Action = iota + 1
	ActionLock
	ActionUnlock
	ActionGiveaway
)

func (a Action) String() string {
	switch a {
	case ActionRemove:
		return "remove"
	case ActionLock:
		return "lock"
	case ActionUnlock:
		return "unlock"
	case ActionGiveaway:
		return "giveaway"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ClaimIfUnowned makes player the owner of an unclaimed vehicle. It reports
// whether the claim happened.
func ClaimIfUnowned(r *vehicle.Record, player uuid.UUID) bool {
	if r == nil || r.HasOwner() {
		return false
	}
	r.SetOwner(player)
	return true
}

// CanEnter reports whether player may take a seat. Locked vehicles admit only
// their owner.
func CanEnter(r *vehicle.Record, player uuid.UUID) bool {
	if r == nil {
		return false
	}
	return !r.Locked || r.OwnedBy(player)
}

// Lock locks the vehicle for its owner.
func Lock(r *vehicle.Record, requester uuid.UUID) error {
	if err := checkOwner(r, requester); err != nil {
		return err
	}
	if r.Locked {
		return ErrAlreadyLocked
	}
	r.Locked = true
	return nil
}

// Unlock unlocks the vehicle for its owner.
func Unlock(r *vehicle.Record, requester uuid.UUID) error {
	if err := checkOwner(r, requester); err != nil {
		return err
	}
	if !r.Locked {
		return ErrAlreadyUnlocked
	}
	r.Locked = false
	return nil
}

// Giveaway releases the vehicle so the next driver claims it.
func Giveaway(r *vehicle.Record, requester uuid.UUID) error {
	if err := checkOwner(r, requester); err != nil {
		return err
	}
	r.ClearOwner()
	return nil
}

// Remove only confirms there is a record to remove. Whether the requester may
// remove it is decided by the caller's permission check.
func Remove(r *vehicle.Record) error {
	if r == nil {
		return ErrNoTarget
	}
	return nil
}

// Apply resolves action against r on behalf of requester.
func Apply(action Action, r *vehicle.Record, requester uuid.UUID) error {
	switch action {
	case ActionRemove:
		return Remove(r)
	case ActionLock:
		return Lock(r, requester)
	case ActionUnlock:
		return Unlock(r, requester)
	case ActionGiveaway:
		return Giveaway(r, requester)
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

func checkOwner(r *vehicle.Record, requester uuid.UUID) error {
	if r == nil {
		return ErrNoTarget
	}
	if !r.HasOwner() {
		return ErrNoOwner
	}
	if !r.OwnedBy(requester) {
		return ErrNotOwner
	}
	return nil
}
