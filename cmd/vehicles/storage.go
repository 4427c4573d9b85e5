package main

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/storage/memory"
	pgstorage "github.com/OCAP2/vehicles/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/vehicles/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/vehicles/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, wsCfg config.WebsocketConfig, zlog zerolog.Logger, logger *slog.Logger) (storage.Backend, error) {
	var backend storage.Backend

	switch storageCfg.Type {
	case "postgres":
		pg, err := pgstorage.Open(storageCfg.Postgres, zlog)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres backend: %w", err)
		}
		if pg.Local() {
			logger.Warn("Postgres unreachable, vehicles are kept in an in-memory SQLite database")
		}
		backend = pg

	case "sqlite":
		lite, err := sqlitestorage.New(storageCfg.SQLite, zlog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		backend = lite

	case "memory":
		backend = memory.New(storageCfg.Memory)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
	logger.Info("Storage backend created", "type", storageCfg.Type)

	if !wsCfg.Enabled {
		return backend, nil
	}
	if wsCfg.URL == "" {
		return nil, fmt.Errorf("websocket mirroring enabled without a url")
	}
	sink := wsstorage.New(wsstorage.Config{
		URL:    wsCfg.URL,
		Secret: wsCfg.Secret,
		Server: ExtensionName,
	}, logger)
	logger.Info("Mirroring vehicle changes", "url", wsCfg.URL)
	return storage.NewTee(backend, sink), nil
}
