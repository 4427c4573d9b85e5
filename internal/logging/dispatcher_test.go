package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/dispatcher"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	dl.Debug("test message", "key1", "value1", "key2", 42)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
}

func TestDispatcherLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("info message", "status", "ok")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "ok", entry["status"])
}

func TestDispatcherLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("failed", "command", ":SAVE:")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, ":SAVE:", entry["command"])
}

func TestDispatcherLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("odd", "key", "value", "dangling", 7, "x")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.NotContains(t, entry, "x")
}

func TestDispatcherLogger_ImplementsInterface(t *testing.T) {
	var _ dispatcher.Logger = NewDispatcherLogger(zerolog.Nop())
}

func TestNewZerolog_WritesConsoleAndExtra(t *testing.T) {
	var file, extra bytes.Buffer
	log := NewZerolog(&file, "debug", &extra, nil)

	log.Debug().Str("vehicle", "abc").Msg("saved")

	assert.Contains(t, file.String(), "saved")
	assert.Contains(t, file.String(), "vehicle=abc")

	entry := decodeEntry(t, &extra)
	assert.Equal(t, "saved", entry["message"])
}

func TestParseZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseZerologLevel("debug"))
	assert.Equal(t, zerolog.TraceLevel, ParseZerologLevel("TRACE"))
	assert.Equal(t, zerolog.ErrorLevel, ParseZerologLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseZerologLevel("bogus"))
}

func TestDispatcherLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf)).Component("storage")

	dl.Warn("slow flush")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "storage", entry["component"])
}
