// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// ErrNotFound is returned by GetSubject, GetRun and LatestRun for unknown keys.
var ErrNotFound = core.ErrNotFound

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Subjects
	AddSubject(ctx context.Context, s *core.Subject) error
	GetSubject(ctx context.Context, id uint) (core.Subject, error)

	// Raw fixes
	RecordPoint(ctx context.Context, f *core.Fix) error
	// PointsForDay returns the subject's fixes of one UTC day ordered by time,
	// as an unannotated sequence ready for the processor.
	PointsForDay(ctx context.Context, subjectID uint, day string) ([]core.TrackPoint, error)

	// Processed runs
	SaveRun(ctx context.Context, r *core.TrackRun) error
	GetRun(ctx context.Context, id string) (core.TrackRun, error)
	LatestRun(ctx context.Context, subjectID uint, day string) (core.TrackRun, error)
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the rendering frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Monitorable is an optional interface for backends with background writers.
type Monitorable interface {
	QueueLengths() model.WriteQueueLengths
	LastWriteDuration() time.Duration
}
