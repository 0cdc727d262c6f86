package main

import (
	"fmt"
	"path/filepath"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/database"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/storage"
	pgstorage "github.com/fieldtrack/trackcheck/internal/storage/postgres"
	"github.com/spf13/viper"
)

func (a *app) initStorage() error {
	storageCfg := config.GetStorageConfig()

	backend, err := a.createStorageBackend(storageCfg)
	if err != nil {
		a.logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		a.logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}
	a.backend = backend
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return nil
}

func (a *app) createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		// Postgres unreachable: keep running on an in-memory SQLite database
		// and dump it next to the sqlite backend output on shutdown.
		a.dbManager = database.NewManager(
			logging.NewZerolog(a.logFile, viper.GetString("logLevel"), "database"),
			config.GetDBConfig())
		if err := a.dbManager.Connect(); err != nil {
			return nil, err
		}
		if err := a.dbManager.Setup(); err != nil {
			return nil, err
		}
		if a.dbManager.Fallback {
			a.dbManager.SnapshotPath = storageCfg.SQLite.OutputPath
			a.logger.Warn("Postgres unavailable, using in-memory SQLite", "dumpPath", storageCfg.SQLite.OutputPath)
		}
		return pgstorage.New(pgstorage.Dependencies{
			DB:         a.dbManager.DB,
			LogManager: a.logManager,
		}, storageCfg.Postgres), nil

	case "sqlite":
		if dir := filepath.Dir(storageCfg.SQLite.OutputPath); dir != "" {
			if dumps, err := database.ListDumps(dir); err == nil && len(dumps) > 0 {
				a.logger.Info("Found SQLite snapshots", "dir", dir, "count", len(dumps), "newest", dumps[0])
			}
		}
		return storage.NewBackend(storageCfg, a.logManager)

	default:
		backend, err := storage.NewBackend(storageCfg, a.logManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage backend: %w", err)
		}
		return backend, nil
	}
}
