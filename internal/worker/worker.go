package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldtrack/trackcheck/internal/cache"
	"github.com/fieldtrack/trackcheck/internal/influx"
	"github.com/fieldtrack/trackcheck/internal/logging"
	trackotel "github.com/fieldtrack/trackcheck/internal/otel"
	"github.com/fieldtrack/trackcheck/internal/storage"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/google/uuid"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Processor     *track.Processor
	Subjects      *cache.SubjectCache
	Runs          *cache.RunCache
	RunsProcessed *cache.SafeCounter
	LogManager    *logging.SlogManager
	// optional
	Influx  *influx.Manager
	Metrics *trackotel.TrackMetrics
}

// Manager turns commands into storage writes and processed runs
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	now     func() time.Time
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Processor == nil {
		deps.Processor = track.New(track.DefaultConfig())
	}
	if deps.Subjects == nil {
		deps.Subjects = cache.NewSubjectCache()
	}
	if deps.Runs == nil {
		deps.Runs = cache.NewRunCache()
	}
	if deps.RunsProcessed == nil {
		deps.RunsProcessed = &cache.SafeCounter{}
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		now:     time.Now,
	}
}

// Processor returns the configured track processor.
func (m *Manager) Processor() *track.Processor {
	return m.deps.Processor
}

// RunsProcessed is the number of runs processed since start.
func (m *Manager) RunsProcessed() int {
	return m.deps.RunsProcessed.Value()
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.Monitorable); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// AddSubject registers a subject in storage and the consent cache.
func (m *Manager) AddSubject(ctx context.Context, in SubjectInput) (core.Subject, error) {
	if err := validate.Struct(in); err != nil {
		return core.Subject{}, invalid(err)
	}
	s := in.Subject()
	if err := m.backend.AddSubject(ctx, &s); err != nil {
		return core.Subject{}, fmt.Errorf("failed to add subject %d: %w", s.ID, err)
	}
	m.deps.Subjects.Add(s)
	return s, nil
}

// trackingEnabled consults the cache first and falls back to storage.
func (m *Manager) trackingEnabled(ctx context.Context, id uint) (bool, error) {
	if enabled, known := m.deps.Subjects.TrackingEnabled(id); known {
		return enabled, nil
	}
	s, err := m.backend.GetSubject(ctx, id)
	if err != nil {
		return false, err
	}
	m.deps.Subjects.Add(s)
	return s.TrackingEnabled, nil
}

// RecordPoint validates a fix, checks tracking consent and stores it.
func (m *Manager) RecordPoint(ctx context.Context, in PointInput) error {
	if err := validate.Struct(in); err != nil {
		return invalid(err)
	}
	if in.Time.IsZero() {
		return fmt.Errorf("%w: time is required", ErrInvalidInput)
	}

	enabled, err := m.trackingEnabled(ctx, in.SubjectID)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("subject %d: %w", in.SubjectID, core.ErrTrackingDisabled)
	}

	fix, err := in.Fix()
	if err != nil {
		return invalid(err)
	}
	if err := m.backend.RecordPoint(ctx, &fix); err != nil {
		return fmt.Errorf("failed to record point: %w", err)
	}
	m.deps.Runs.Invalidate(fix.SubjectID, util.DayOf(fix.Time))
	return nil
}

// ProcessDay loads a subject-day, runs the processor and persists the run.
func (m *Manager) ProcessDay(ctx context.Context, subjectID uint, day, source string) (core.TrackRun, error) {
	if _, err := util.ParseDay(day); err != nil {
		return core.TrackRun{}, invalid(err)
	}
	ctx = logging.AppendCtx(ctx,
		slog.Uint64("subject", uint64(subjectID)),
		slog.String("day", day),
		slog.String("source", source))
	log := m.deps.LogManager.Logger()

	points, err := m.backend.PointsForDay(ctx, subjectID, day)
	if err != nil {
		return core.TrackRun{}, fmt.Errorf("failed to load points: %w", err)
	}

	res := m.deps.Processor.Run(points)
	run := core.TrackRun{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Day:         day,
		ProcessedAt: m.now().UTC(),
		Points:      res.Points,
		Summary:     res.Summary,
	}
	if err := m.backend.SaveRun(ctx, &run); err != nil {
		return core.TrackRun{}, fmt.Errorf("failed to save run: %w", err)
	}

	m.deps.Runs.Set(subjectID, day, run.ID)
	m.deps.RunsProcessed.Inc()
	m.deps.Metrics.Record(ctx, source, run.Summary)
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WriteRun(ctx, run); err != nil {
			log.WarnContext(ctx, "Failed to write run metrics", "run", run.ID, "error", err)
		}
	}

	if run.Summary.AnySuspicious {
		log.WarnContext(ctx, "Suspicious points in run",
			"run", run.ID, "count", run.Summary.SuspiciousCount)
	} else {
		log.DebugContext(ctx, "Run stored", "run", run.ID, "points", len(run.Points))
	}
	return run, nil
}

// Track returns the latest run of a subject-day, processing it again when
// fixes arrived after the cached run.
func (m *Manager) Track(ctx context.Context, subjectID uint, day, source string) (core.TrackRun, error) {
	if runID, ok := m.deps.Runs.Get(subjectID, day); ok {
		run, err := m.backend.GetRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.TrackRun{}, err
		}
	}
	return m.ProcessDay(ctx, subjectID, day, source)
}

// Annotate processes an ad-hoc sequence without touching storage.
func (m *Manager) Annotate(ctx context.Context, points []core.TrackPoint) track.Result {
	res := m.deps.Processor.Run(points)
	m.deps.Metrics.Record(ctx, "annotate", res.Summary)
	return res
}
