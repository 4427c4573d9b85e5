// Package websocket mirrors vehicle saves, deletions and audited commands to a
// remote server over a WebSocket. It is a storage.Sink: it never serves
// loads.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/vehicle"
	"github.com/OCAP2/vehicles/pkg/core"
	"github.com/OCAP2/vehicles/pkg/streaming"
)

// Config holds WebSocket sink configuration.
type Config struct {
	URL    string
	Secret string
	// Server names this instance in the hello message.
	Server string
}

// Backend streams vehicle changes to a remote server.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket sink. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects, announces this server and waits for the ack. The hello is
// sent again after every reconnect.
func (b *Backend) Init() error {
	hello, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		Server:        b.cfg.Server,
		FormatVersion: vehicle.FormatVersion,
		StartedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := b.conn.open(b.cfg.URL, b.cfg.Secret, hello); err != nil {
		return err
	}
	return b.conn.awaitAck(streaming.TypeHello, ackTimeout)
}

// Close says goodbye and disconnects.
func (b *Backend) Close() error {
	err := b.sendEnvelopeAndWait(streaming.TypeGoodbye, nil)
	if cerr := b.conn.close(); cerr != nil {
		return cerr
	}
	return err
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return b.conn.awaitAck(msgType, ackTimeout)
}

func (b *Backend) SaveVehicle(v *core.StoredVehicle) error {
	return b.sendEnvelope(streaming.TypeVehicleSaved, streaming.VehicleSavedPayload{Vehicle: v})
}

func (b *Backend) DeleteVehicle(id uuid.UUID) error {
	return b.sendEnvelope(streaming.TypeVehicleDeleted, streaming.VehicleDeletedPayload{UUID: id})
}

func (b *Backend) RecordCommand(e *core.CommandEvent) error {
	return b.sendEnvelope(streaming.TypeCommand, streaming.CommandPayload{Command: e})
}
