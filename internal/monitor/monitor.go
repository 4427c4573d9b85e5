// Package monitor runs the periodic housekeeping of a running world: it
// queues autosaves, records world gauges and keeps a status file current.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/vehicles/internal/dispatcher"
	"github.com/OCAP2/vehicles/internal/handlers"
	"github.com/OCAP2/vehicles/internal/logging"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/world"
)

// WorldRecorder receives the world gauges on every tick.
type WorldRecorder interface {
	RecordWorld(vehicles, pending int) error
}

// Flusher pushes buffered telemetry out.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	World      *world.Registry
	Sessions   *session.Manager
	Recorder   WorldRecorder
	Telemetry  Flusher
	LogManager *logging.SlogManager
	// StatusPath is rewritten on every tick; empty disables it.
	StatusPath string
	Interval   time.Duration
}

// Status is a point-in-time summary of the world.
type Status struct {
	Time     time.Time `json:"time"`
	Vehicles int       `json:"vehicles"`
	Pending  int       `json:"pending"`
	Riders   int       `json:"riders"`
	// OldestPendingSeconds is how long the longest-waiting tap has been queued.
	OldestPendingSeconds float64 `json:"oldestPendingSeconds,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current world status
func (s *Service) GetStatus() Status {
	now := time.Now().UTC()
	st := Status{
		Time:     now,
		Vehicles: s.deps.World.Len(),
		Pending:  s.deps.Sessions.PendingCount(),
		Riders:   s.deps.Sessions.Riders(),
	}
	if age, ok := s.deps.Sessions.OldestPending(now); ok {
		st.OldestPendingSeconds = age.Seconds()
	}
	return st
}

// Tick runs one round of housekeeping.
func (s *Service) Tick(ctx context.Context) {
	logger := s.deps.LogManager.Logger()

	if s.deps.Dispatcher != nil {
		if _, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{Command: handlers.CmdSave}); err != nil {
			logger.Warn("Autosave not queued", "error", err)
		}
	}

	status := s.GetStatus()
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordWorld(status.Vehicles, status.Pending); err != nil {
			logger.Warn("Failed to record world stats", "error", err)
		}
	}
	if s.deps.StatusPath != "" {
		if err := writeStatus(s.deps.StatusPath, status); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}
	if s.deps.Telemetry != nil {
		if err := s.deps.Telemetry.Flush(ctx); err != nil {
			logger.Warn("Failed to flush telemetry", "error", err)
		}
	}
}

func writeStatus(path string, status Status) error {
	b, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}

// Start starts the status monitor goroutine. A non-positive interval leaves
// the monitor stopped.
func (s *Service) Start() error {
	if s.deps.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", s.deps.Interval)
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.LogManager.Logger().Debug("Starting status monitor", "interval", s.deps.Interval)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for a running tick to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()

	<-done
}
