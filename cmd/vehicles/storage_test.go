package main

import (
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/vehicles/internal/storage/sqlite"
)

func TestCreateStorageBackend(t *testing.T) {
	logger := slog.Default()

	t.Run("memory", func(t *testing.T) {
		b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, config.WebsocketConfig{}, zerolog.Nop(), logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)
	})

	t.Run("sqlite", func(t *testing.T) {
		b, err := createStorageBackend(config.StorageConfig{Type: "sqlite"}, config.WebsocketConfig{}, zerolog.Nop(), logger)
		require.NoError(t, err)
		assert.IsType(t, &sqlitestorage.Backend{}, b)
		require.NoError(t, b.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := createStorageBackend(config.StorageConfig{Type: "redis"}, config.WebsocketConfig{}, zerolog.Nop(), logger)
		assert.ErrorContains(t, err, "unknown storage type")
	})

	t.Run("websocket mirror", func(t *testing.T) {
		b, err := createStorageBackend(config.StorageConfig{Type: "memory"},
			config.WebsocketConfig{Enabled: true, URL: "ws://127.0.0.1:1/ingest"}, zerolog.Nop(), logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.Tee{}, b)
	})

	t.Run("websocket without url", func(t *testing.T) {
		_, err := createStorageBackend(config.StorageConfig{Type: "memory"},
			config.WebsocketConfig{Enabled: true}, zerolog.Nop(), logger)
		assert.Error(t, err)
	})
}
