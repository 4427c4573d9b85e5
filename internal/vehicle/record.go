// Package vehicle holds the data model of a rideable vehicle entity and its
// versioned persistence codec.
package vehicle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FormatVersion is the only persistence version this build reads or writes.
const FormatVersion int32 = 3

// Type is the movement category of a vehicle.
type Type int32

const (
	TypeLand    Type = 0
	TypeWater   Type = 1
	TypeAir     Type = 2
	TypeRail    Type = 3
	TypeUnknown Type = 9
)

func (t Type) String() string {
	switch t {
	case TypeLand:
		return "land"
	case TypeWater:
		return "water"
	case TypeAir:
		return "air"
	case TypeRail:
		return "rail"
	default:
		return "unknown"
	}
}

// ParseType maps a catalog name to a Type. Unrecognised names map to
// TypeUnknown.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "land":
		return TypeLand
	case "water":
		return TypeWater
	case "air":
		return TypeAir
	case "rail":
		return TypeRail
	default:
		return TypeUnknown
	}
}

// typeFromInt keeps known categories and folds everything else into
// TypeUnknown.
func typeFromInt(v int32) Type {
	switch t := Type(v); t {
	case TypeLand, TypeWater, TypeAir, TypeRail:
		return t
	default:
		return TypeUnknown
	}
}

// Vec3 is an offset from the entity origin.
type Vec3 [3]float32

// BoundingBox is min x,y,z followed by max x,y,z.
type BoundingBox [6]float32

// Speed holds the per-direction movement multipliers.
type Speed struct {
	Forward  float64
	Backward float64
	Left     float64
	Right    float64
}

// Record is the persisted state of one vehicle entity.
type Record struct {
	UUID    uuid.UUID
	Version int32
	Type    Type

	// Name is the preset key, Design the skin key. Both are required.
	Name   string
	Design string

	Gravity float64
	Scale   float32

	BBox           BoundingBox
	Speed          Speed
	DriverSeat     Vec3
	PassengerSeats []Vec3

	Owner  uuid.NullUUID
	Locked bool
}

var (
	ErrMissingName   = errors.New("vehicle has no preset name")
	ErrMissingDesign = errors.New("vehicle has no design")
	ErrLockedUnowned = errors.New("vehicle is locked without an owner")
)

// Validate checks the invariants every constructed record must hold.
func (r *Record) Validate() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if r.Design == "" {
		return fmt.Errorf("vehicle '%s': %w", r.Name, ErrMissingDesign)
	}
	if r.Locked && !r.Owner.Valid {
		return fmt.Errorf("vehicle '%s': %w", r.Name, ErrLockedUnowned)
	}
	return nil
}

// HasOwner reports whether the vehicle has been claimed.
func (r *Record) HasOwner() bool {
	return r.Owner.Valid
}

// OwnedBy reports whether player owns the vehicle.
func (r *Record) OwnedBy(player uuid.UUID) bool {
	return r.Owner.Valid && r.Owner.UUID == player
}

// SetOwner claims the vehicle for player.
func (r *Record) SetOwner(player uuid.UUID) {
	r.Owner = uuid.NullUUID{UUID: player, Valid: true}
}

// ClearOwner releases the vehicle. A released vehicle is never locked.
func (r *Record) ClearOwner() {
	r.Owner = uuid.NullUUID{}
	r.Locked = false
}

// Seats returns the total seat count, driver included.
func (r *Record) Seats() int {
	return 1 + len(r.PassengerSeats)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.PassengerSeats != nil {
		c.PassengerSeats = make([]Vec3, len(r.PassengerSeats))
		copy(c.PassengerSeats, r.PassengerSeats)
	}
	return &c
}
