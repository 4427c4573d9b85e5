// Package logging sets up the two loggers the service runs with: slog for
// application logs (file, Graylog and OTel) and zerolog for the storage and
// dispatch internals.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionStamp = "20060102_150405"

// LogFilePath names the log file of one run: <name>.<start>.log in logsDir.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, sessionStart.Format(sessionStamp)))
}

// OpenLogFile creates logsDir if needed and opens the run's log file for
// appending.
func OpenLogFile(logsDir, name string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := LogFilePath(logsDir, name, sessionStart)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
