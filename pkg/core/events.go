// pkg/core/events.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// CommandEvent is one handled /vehicles invocation or tap resolution.
type CommandEvent struct {
	Time       time.Time
	Player     uuid.UUID
	PlayerName string
	Command    string
	Args       []string
	Target     uuid.NullUUID // vehicle acted on, when there was one
	Outcome    string        // "ok", "pending" or the error text
}

// Succeeded reports whether the command completed without an error.
func (e CommandEvent) Succeeded() bool {
	return e.Outcome == OutcomeOK || e.Outcome == OutcomePending
}

const (
	OutcomeOK      = "ok"
	OutcomePending = "pending"
)
