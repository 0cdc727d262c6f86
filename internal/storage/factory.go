// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/storage/memory"
	"github.com/fieldtrack/trackcheck/internal/storage/postgres"
	sqlitestorage "github.com/fieldtrack/trackcheck/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(postgres.Dependencies{
			LogManager: logManager,
		}, cfg.Postgres), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, cfg.Postgres, logManager)
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
