// pkg/core/vehicle.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// Position3D is a position in engine world coordinates.
type Position3D struct {
	X float64
	Y float64
	Z float64
}

// StoredVehicle is a vehicle as handed to a storage backend.
// Data holds the binary tagged-value encoding of the full record; the other
// fields are copies kept for querying and mirroring.
type StoredVehicle struct {
	UUID     uuid.UUID
	Preset   string
	Design   string
	Type     string
	Owner    uuid.NullUUID
	Locked   bool
	Level    string
	Position Position3D
	Data     []byte
	SavedAt  time.Time
}
