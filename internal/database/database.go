// Package database opens the Postgres and SQLite connections behind the GORM
// storage backends and owns schema migration and SQLite snapshots.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memoryDBCounter gives each in-memory database its own shared-cache name.
var memoryDBCounter atomic.Uint64

// Manager connects to Postgres and falls back to an in-memory SQLite
// database that is dumped to SnapshotPath when Postgres is unreachable.
type Manager struct {
	DB           *gorm.DB
	SqlDB        *sql.DB
	Fallback     bool
	SnapshotPath string
	Logger       zerolog.Logger

	cfg config.DBConfig
}

// NewManager creates a database manager for cfg.
func NewManager(log zerolog.Logger, cfg config.DBConfig) *Manager {
	return &Manager{Logger: log, cfg: cfg}
}

// Connect opens Postgres, or the SQLite fallback when Postgres cannot be pinged.
func (m *Manager) Connect() error {
	db, err := OpenPostgres(m.cfg)
	if err == nil {
		m.SqlDB, err = db.DB()
		if err == nil {
			err = m.SqlDB.Ping()
		}
	}
	if err == nil {
		m.DB = db
		m.Logger.Info().Str("host", m.cfg.Host).Str("database", m.cfg.Database).Msg("Connected to Postgres")
		return nil
	}

	m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
	m.Fallback = true
	if m.DB, err = OpenSQLite(""); err != nil {
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	if m.SqlDB, err = m.DB.DB(); err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.Logger.Info().Msg("Using local SQLite DB in memory with a snapshot on shutdown")
	return nil
}

// Setup migrates the schema.
func (m *Manager) Setup() error {
	if err := Migrate(m.DB); err != nil {
		return err
	}
	m.Logger.Info().Str("dialect", m.DB.Name()).Msg("Database setup complete")
	return nil
}

// DumpMemoryToDisk snapshots the fallback database to SnapshotPath.
func (m *Manager) DumpMemoryToDisk() error {
	start := time.Now()
	if err := DumpSQLite(m.DB, m.SnapshotPath); err != nil {
		return err
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", m.SnapshotPath).Msg("Dumped memory DB to disk")
	return nil
}

// Migrate migrates all models. On Postgres it first enables PostGIS and
// afterwards indexes fix positions for spatial queries.
func Migrate(db *gorm.DB) error {
	pg := db.Name() == "postgres"
	if pg {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
	}
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if pg {
		err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_gps_points_position ON gps_points USING GIST (position);`).Error
		if err != nil {
			return fmt.Errorf("failed to index fix positions: %w", err)
		}
	}
	return nil
}

// PostgresDSN builds the key/value connection string for cfg.
func PostgresDSN(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode)
}

// OpenPostgres opens a pooled Postgres connection. It does not ping.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        5000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	configurePool(sqlDB, cfg)
	return db, nil
}

// configurePool applies the db.* pool limits; zero values keep driver defaults.
func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// OpenSQLite opens the SQLite file at path, or a fresh private in-memory
// database when path is empty.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:trackcheck-%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if path == "" {
		// one connection: shared-cache tables lock across connections and
		// ATTACH is per connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// DumpSQLite snapshots db into path with VACUUM INTO. The snapshot is
// written next to path first and renamed over it, so a crash mid-dump
// keeps the previous snapshot.
func DumpSQLite(db *gorm.DB, path string) error {
	if path == "" {
		return fmt.Errorf("sqlite file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating dump directory: %w", err)
	}

	tmp := path + ".partial"
	_ = os.Remove(tmp)
	if err := db.Exec("VACUUM INTO ?", tmp).Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing DB snapshot: %w", err)
	}
	return nil
}

// RestoreSQLite copies every model table of the snapshot at path into db,
// which must already be migrated. Rows whose key already exists are kept.
func RestoreSQLite(db *gorm.DB, path string) (int64, error) {
	if err := db.Exec("ATTACH DATABASE ? AS snapshot", path).Error; err != nil {
		return 0, fmt.Errorf("failed to attach snapshot: %w", err)
	}
	defer db.Exec("DETACH DATABASE snapshot")

	var restored int64
	for _, m := range model.DatabaseModels {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return restored, fmt.Errorf("failed to parse model: %w", err)
		}
		var cols []string
		for _, f := range stmt.Schema.Fields {
			if f.DBName != "" {
				cols = append(cols, `"`+f.DBName+`"`)
			}
		}
		list := strings.Join(cols, ", ")
		res := db.Exec(fmt.Sprintf(`INSERT OR IGNORE INTO main.%q (%s) SELECT %s FROM snapshot.%q`,
			stmt.Schema.Table, list, list, stmt.Schema.Table))
		if res.Error != nil {
			return restored, fmt.Errorf("failed to restore %s: %w", stmt.Schema.Table, res.Error)
		}
		restored += res.RowsAffected
	}
	return restored, nil
}

// ListDumps returns the .db files in dir, newest first.
func ListDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type dump struct {
		path string
		mod  time.Time
	}
	var dumps []dump
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dumps = append(dumps, dump{filepath.Join(dir, e.Name()), info.ModTime()})
	}
	sort.SliceStable(dumps, func(i, j int) bool { return dumps[i].mod.After(dumps[j].mod) })

	paths := make([]string, len(dumps))
	for i, d := range dumps {
		paths[i] = d.path
	}
	return paths, nil
}
