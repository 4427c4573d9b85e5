package parser

import (
	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/commands"
	"github.com/OCAP2/vehicles/internal/world"
)

// CommandEvent is one /vehicles invocation. Args excludes the command name.
type CommandEvent struct {
	Sender commands.Sender
	Args   []string
}

// TapEvent is a player tapping (interacting with) an entity.
type TapEvent struct {
	Player uuid.UUID
	Entity world.EntityID
}

// SeatEvent is a player getting into or out of a vehicle.
type SeatEvent struct {
	Player uuid.UUID
	Entity world.EntityID
	Driver bool
}

// PlayerEvent concerns a player as a whole, such as disconnecting.
type PlayerEvent struct {
	Player uuid.UUID
}

// MoveEvent reports where a vehicle entity now is.
type MoveEvent struct {
	Entity   world.EntityID
	Position world.Position
}
