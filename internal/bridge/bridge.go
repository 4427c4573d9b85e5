// Package bridge connects the game host to the dispatcher over a line
// protocol. The host writes one call per line as
//
//	COMMAND|arg|arg...
//
// and reads back one JSON array per line: ["ok","COMMAND"],
// ["ok","COMMAND",result] or ["error","COMMAND","message"].
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/OCAP2/vehicles/internal/dispatcher"
)

// Built-in commands answered without the dispatcher.
const (
	CmdVersion   = ":VERSION:"
	CmdTimestamp = ":TIMESTAMP:"
)

// Separator splits a call into its command and arguments.
const Separator = "|"

const maxLineSize = 1 << 20

// Bridge answers host calls.
type Bridge struct {
	dispatcher *dispatcher.Dispatcher
	version    string
	logger     *slog.Logger
}

// New creates a bridge that routes calls to d.
func New(d *dispatcher.Dispatcher, version string, logger *slog.Logger) *Bridge {
	return &Bridge{dispatcher: d, version: version, logger: logger}
}

// Handle answers one call.
func (b *Bridge) Handle(line string) string {
	parts := strings.Split(line, Separator)
	command := strings.TrimSpace(parts[0])
	args := parts[1:]

	switch command {
	case CmdVersion:
		return formatDispatchResponse(command, b.version, nil)
	case CmdTimestamp:
		return formatDispatchResponse(command, getTimestamp(), nil)
	}

	if b.dispatcher == nil || !b.dispatcher.HasHandler(command) {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered"))
	}

	result, err := b.dispatcher.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

// Serve answers calls from r until it is exhausted or ctx is done. Empty
// lines are skipped.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if _, err := out.WriteString(b.Handle(line) + "\n"); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		b.logger.Error("Bridge input failed", "error", err)
		return err
	}
	return nil
}

// formatDispatchResponse formats the dispatcher result for the host
func formatDispatchResponse(command string, result any, err error) string {
	var reply []any
	switch {
	case err != nil:
		reply = []any{"error", command, err.Error()}
	case result == nil:
		reply = []any{"ok", command}
	default:
		reply = []any{"ok", command, fmt.Sprint(result)}
	}
	b, mErr := json.Marshal(reply)
	if mErr != nil {
		return fmt.Sprintf(`["error", %q, %q]`, command, mErr.Error())
	}
	return string(b)
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
