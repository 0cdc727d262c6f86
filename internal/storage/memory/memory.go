// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/model/convert"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// SubjectRecord groups a subject with all its raw fixes
type SubjectRecord struct {
	Subject core.Subject
	Fixes   []core.Fix
}

// Backend keeps subjects, fixes and runs in memory and exports each saved
// run to a JSON file
type Backend struct {
	cfg config.MemoryConfig

	subjects map[uint]*SubjectRecord
	runs     map[string]core.TrackRun
	latest   map[string]string // subject/day -> run ID

	lastExportPath     string
	lastExportMetadata core.UploadMetadata
	mu                 sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		subjects: make(map[uint]*SubjectRecord),
		runs:     make(map[string]core.TrackRun),
		latest:   make(map[string]string),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func dayKey(subjectID uint, day string) string {
	return fmt.Sprintf("%d/%s", subjectID, day)
}

// AddSubject registers or updates a subject. Known fixes are kept.
func (b *Backend) AddSubject(_ context.Context, s *core.Subject) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.subjects[s.ID]; ok {
		rec.Subject = *s
		return nil
	}
	b.subjects[s.ID] = &SubjectRecord{
		Subject: *s,
		Fixes:   make([]core.Fix, 0),
	}
	return nil
}

// GetSubject returns a registered subject
func (b *Backend) GetSubject(_ context.Context, id uint) (core.Subject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.subjects[id]
	if !ok {
		return core.Subject{}, fmt.Errorf("subject %d: %w", id, core.ErrNotFound)
	}
	return rec.Subject, nil
}

// RecordPoint appends a fix to its subject
func (b *Backend) RecordPoint(_ context.Context, f *core.Fix) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.subjects[f.SubjectID]
	if !ok {
		return fmt.Errorf("subject %d: %w", f.SubjectID, core.ErrNotFound)
	}
	rec.Fixes = append(rec.Fixes, *f)
	return nil
}

// PointsForDay returns the subject's fixes of one UTC day ordered by time.
// Fixes sharing a timestamp keep their arrival order.
func (b *Backend) PointsForDay(_ context.Context, subjectID uint, day string) ([]core.TrackPoint, error) {
	start, end, err := util.DayBounds(day)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	rec, ok := b.subjects[subjectID]
	var fixes []core.Fix
	if ok {
		for _, f := range rec.Fixes {
			if !f.Time.Before(start) && f.Time.Before(end) {
				fixes = append(fixes, f)
			}
		}
	}
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("subject %d: %w", subjectID, core.ErrNotFound)
	}

	slices.SortStableFunc(fixes, func(a, b core.Fix) int {
		return a.Time.Compare(b.Time)
	})
	return convert.FixesToTrack(fixes), nil
}

// SaveRun stores a run, marks it as the latest of its subject-day and
// exports it when an output directory is configured
func (b *Backend) SaveRun(_ context.Context, r *core.TrackRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run := *r
	run.Points = core.ClonePoints(r.Points)
	b.runs[run.ID] = run

	key := dayKey(run.SubjectID, run.Day)
	if prev, ok := b.runs[b.latest[key]]; !ok || !run.ProcessedAt.Before(prev.ProcessedAt) {
		b.latest[key] = run.ID
	}

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON(run)
}

// GetRun returns a stored run by ID
func (b *Backend) GetRun(_ context.Context, id string) (core.TrackRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, ok := b.runs[id]
	if !ok {
		return core.TrackRun{}, fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	return run, nil
}

// LatestRun returns the most recently processed run of a subject-day
func (b *Backend) LatestRun(_ context.Context, subjectID uint, day string) (core.TrackRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, ok := b.runs[b.latest[dayKey(subjectID, day)]]
	if !ok {
		return core.TrackRun{}, fmt.Errorf("run of subject %d on %s: %w", subjectID, day, core.ErrNotFound)
	}
	return run, nil
}
