// Package postgres implements the storage.Backend interface on PostgreSQL
// (with PostGIS), reusing the GORM backend's queues and background writer.
// When the server cannot be reached it falls back to an in-memory SQLite
// database so the world keeps saving for the rest of the session.
package postgres

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/database"
	gormstorage "github.com/OCAP2/vehicles/internal/storage/gorm"
)

// Backend wraps the GORM backend with a managed Postgres connection.
type Backend struct {
	*gormstorage.Backend
	manager *database.Manager
}

// Open connects to Postgres, falling back to in-memory SQLite on failure.
func Open(cfg config.PostgresConfig, log zerolog.Logger) (*Backend, error) {
	m := database.NewManager(log)
	if err := m.Connect(cfg); err != nil {
		return nil, err
	}
	return New(m, cfg.FlushInterval), nil
}

// New wraps an already connected manager.
func New(m *database.Manager, flushInterval time.Duration) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:            m.DB,
			Logger:        m.Logger,
			FlushInterval: flushInterval,
		}),
		manager: m,
	}
}

// Init migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if err := b.manager.Setup(); err != nil {
		return err
	}
	return b.Backend.Init()
}

// Close flushes pending writes and closes the connection.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.manager.SqlDB != nil {
		return b.manager.SqlDB.Close()
	}
	return nil
}

// Local reports whether the backend fell back to in-memory SQLite.
func (b *Backend) Local() bool {
	return b.manager.ShouldSaveLocal
}
