// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with an internal fix queue and a background DB writer goroutine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/database"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/internal/model/convert"
	"github.com/fieldtrack/trackcheck/internal/queue"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultBatchSize     = 500
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// Backend implements storage.Backend using GORM with queue-based batch writes
// of raw fixes. Subjects and runs are written synchronously.
type Backend struct {
	deps   Dependencies
	cfg    config.PostgresConfig
	points *queue.Queue[model.GPSPoint]

	// serializes flushes between the writer goroutine and readers
	flushMu           sync.Mutex
	lastWriteDuration atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
	dbReady  bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies, cfg config.PostgresConfig) *Backend {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:   deps,
		cfg:    cfg,
		points: queue.New[model.GPSPoint](cfg.MaxQueued),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		db, err := database.OpenPostgres(config.GetDBConfig())
		if err != nil {
			close(b.done)
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			close(b.done)
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			close(b.done)
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		b.deps.DB = db
	}

	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		close(b.done)
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("setupDB", "Database setup complete", "INFO")
	b.dbReady = true

	go b.dbWriter()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return nil
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// AddSubject upserts a subject synchronously; fixes reference it by foreign key.
func (b *Backend) AddSubject(ctx context.Context, s *core.Subject) error {
	if b.deps.DB == nil {
		return errors.New("database not initialized")
	}
	gormObj := convert.CoreToSubject(*s)
	err := b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "tracking_enabled", "updated_at"}),
	}).Create(&gormObj).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subject %d: %w", s.ID, err)
	}
	return nil
}

// GetSubject loads a subject by ID.
func (b *Backend) GetSubject(ctx context.Context, id uint) (core.Subject, error) {
	var s model.Subject
	if err := b.deps.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		return core.Subject{}, wrapNotFound(err, fmt.Sprintf("subject %d", id))
	}
	return convert.SubjectToCore(s), nil
}

// RecordPoint converts and queues a fix.
func (b *Backend) RecordPoint(_ context.Context, f *core.Fix) error {
	if dropped := b.points.Push(convert.CoreToGPSPoint(*f)); dropped > 0 {
		b.deps.LogManager.WriteLog("RecordPoint", fmt.Sprintf("Write queue full, dropped %d oldest fixes", dropped), "WARN")
	}
	return nil
}

// PointsForDay flushes pending fixes and loads the subject-day ordered by time.
func (b *Backend) PointsForDay(ctx context.Context, subjectID uint, day string) ([]core.TrackPoint, error) {
	start, end, err := util.DayBounds(day)
	if err != nil {
		return nil, err
	}
	if err := b.Flush(); err != nil {
		return nil, err
	}

	var rows []model.GPSPoint
	err = b.deps.DB.WithContext(ctx).
		Where("subject_id = ? AND time >= ? AND time < ?", subjectID, start, end).
		Order("time ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load points of subject %d on %s: %w", subjectID, day, err)
	}

	fixes := make([]core.Fix, len(rows))
	for i, row := range rows {
		fixes[i] = convert.GPSPointToFix(row)
	}
	return convert.FixesToTrack(fixes), nil
}

// SaveRun inserts a processed run synchronously.
func (b *Backend) SaveRun(ctx context.Context, r *core.TrackRun) error {
	gormObj, err := convert.CoreToTrackRun(*r)
	if err != nil {
		return err
	}
	if err := b.deps.DB.WithContext(ctx).Create(&gormObj).Error; err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (core.TrackRun, error) {
	var r model.TrackRun
	if err := b.deps.DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return core.TrackRun{}, wrapNotFound(err, "run "+id)
	}
	return convert.TrackRunToCore(r)
}

// LatestRun loads the most recent run of a subject-day.
func (b *Backend) LatestRun(ctx context.Context, subjectID uint, day string) (core.TrackRun, error) {
	var r model.TrackRun
	if err := model.LatestRun(b.deps.DB.WithContext(ctx), subjectID, day, &r); err != nil {
		return core.TrackRun{}, wrapNotFound(err, fmt.Sprintf("run of subject %d on %s", subjectID, day))
	}
	return convert.TrackRunToCore(r)
}

// QueueLengths reports pending writes.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{GPSPoints: b.points.Len()}
}

// LastWriteDuration is the duration of the most recent non-empty flush.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteDuration.Load())
}

// Flush drains the fix queue into the database.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return errors.New("database not initialized")
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	wrote := false
	for b.points.Len() > 0 {
		n, err := writeQueue(b.deps.DB, b.points, b.cfg.BatchSize, "gps points", b.deps.LogManager.WriteLog)
		if err != nil {
			return err
		}
		wrote = wrote || n > 0
	}
	if wrote {
		b.lastWriteDuration.Store(int64(time.Since(start)))
	}
	return nil
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// writeQueue writes up to batchSize items from a queue in a transaction.
// On failure the batch is requeued ahead of newer items for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], batchSize int, name string, log func(string, string, string)) (int, error) {
	items := q.Take(batchSize)
	if len(items) == 0 {
		return 0, nil
	}

	tx := db.Begin()
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items)
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Requeue(items)
		return 0, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return len(items), nil
}

// dbWriter periodically drains the fix queue into the DB until Close.
func (b *Backend) dbWriter() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.Flush(); err != nil {
				b.deps.LogManager.WriteLog(":DB:WRITER:", fmt.Sprintf("Final flush failed: %v", err), "ERROR")
			}
			return
		case <-ticker.C:
			if !b.dbReady {
				continue
			}
			// errors are logged by writeQueue and items retried next tick
			_ = b.Flush()
		}
	}
}
