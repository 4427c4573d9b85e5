package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func TestLogFilePath(t *testing.T) {
	tests := []struct {
		name    string
		logsDir string
		file    string
		want    string
	}{
		{"relative", "vehiclelogs", "vehicles", filepath.Join("vehiclelogs", "vehicles.20260212_213836.log")},
		{"dot prefix", "./vehiclelogs", "vehicles", filepath.Join("vehiclelogs", "vehicles.20260212_213836.log")},
		{"absolute", filepath.Join("/var", "log", "vehicles"), "vehicles.otel", filepath.Join("/var", "log", "vehicles", "vehicles.otel.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, tt.file, sessionStart))
		})
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	f, err := OpenLogFile(dir, "vehicles", sessionStart)
	require.NoError(t, err)
	_, err = f.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenLogFile(dir, "vehicles", sessionStart)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(LogFilePath(dir, "vehicles", sessionStart))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(raw))
}

func TestOpenLogFile_DirIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := OpenLogFile(blocker, "vehicles", sessionStart)
	assert.Error(t, err)
}
