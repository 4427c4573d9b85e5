package streaming

import (
	"encoding/json"
	"time"

	"github.com/OCAP2/vehicles/pkg/core"
	"github.com/google/uuid"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello          = "hello"
	TypeGoodbye        = "goodbye"
	TypeVehicleSaved   = "vehicle_saved"
	TypeVehicleDeleted = "vehicle_deleted"
	TypeCommand        = "command"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the server instance that is mirroring.
type HelloPayload struct {
	Server        string    `json:"server"`
	FormatVersion int32     `json:"formatVersion"`
	StartedAt     time.Time `json:"startedAt"`
}

// VehicleSavedPayload is a stored vehicle.
type VehicleSavedPayload struct {
	Vehicle *core.StoredVehicle `json:"vehicle"`
}

// VehicleDeletedPayload names a removed vehicle.
type VehicleDeletedPayload struct {
	UUID uuid.UUID `json:"uuid"`
}

// CommandPayload is one audited command.
type CommandPayload struct {
	Command *core.CommandEvent `json:"command"`
}
