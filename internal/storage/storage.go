// internal/storage/storage.go
package storage

import (
	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Vehicle persistence. SaveVehicle replaces any earlier save with the same UUID.
	SaveVehicle(v *core.StoredVehicle) error
	DeleteVehicle(id uuid.UUID) error
	LoadVehicles() ([]core.StoredVehicle, error)
}

// Auditor is an optional interface for backends that keep a command history.
type Auditor interface {
	RecordCommand(e *core.CommandEvent) error
}

// Sink receives vehicle changes but cannot serve loads. Used for mirroring.
type Sink interface {
	Init() error
	Close() error
	SaveVehicle(v *core.StoredVehicle) error
	DeleteVehicle(id uuid.UUID) error
}
