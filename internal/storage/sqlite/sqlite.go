// Package sqlitestorage keeps subjects, fixes and runs in an in-memory SQLite
// database that survives restarts through snapshots on disk. Queries and
// batching come from the embedded GORM backend.
package sqlitestorage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/database"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/storage/postgres"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*postgres.Backend
	db        *gorm.DB
	cfg       config.SQLiteConfig
	log       *logging.SlogManager
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a new SQLite storage backend.
func New(cfg config.SQLiteConfig, writer config.PostgresConfig, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}

	gormBackend := postgres.New(postgres.Dependencies{
		DB:         db,
		LogManager: logManager,
	}, writer)

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend, reloads the previous snapshot
// at OutputPath if there is one and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.OutputPath != "" {
		if _, err := os.Stat(b.cfg.OutputPath); err == nil {
			n, err := database.RestoreSQLite(b.db, b.cfg.OutputPath)
			if err != nil {
				return fmt.Errorf("failed to restore snapshot %s: %w", b.cfg.OutputPath, err)
			}
			b.log.WriteLog("sqlite:Init", fmt.Sprintf("Restored %d rows from %s", n, b.cfg.OutputPath), "INFO")
		}
	}

	if b.cfg.OutputPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and
// writes a final dump.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
		if err = b.Backend.Close(); err != nil {
			return
		}
		if b.cfg.OutputPath != "" {
			err = b.Dump()
		}
	})
	return err
}

// Dump writes a point-in-time snapshot of the database to OutputPath.
func (b *Backend) Dump() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return database.DumpSQLite(b.db, b.cfg.OutputPath)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			} else {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
			}
		}
	}
}
