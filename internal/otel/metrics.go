package otel

import (
	"context"
	"fmt"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TrackMeterName is the instrumentation scope of the processor counters.
const TrackMeterName = "github.com/fieldtrack/trackcheck/internal/track"

// TrackMetrics counts processed runs and the points they annotate.
type TrackMetrics struct {
	runs       metric.Int64Counter
	suspicious metric.Int64Counter
	jittered   metric.Int64Counter
}

// NewTrackMetrics registers the processor counters on m.
func NewTrackMetrics(m metric.Meter) (*TrackMetrics, error) {
	runs, err := m.Int64Counter("track.runs",
		metric.WithDescription("Processed subject-day tracks"))
	if err != nil {
		return nil, fmt.Errorf("failed to create track.runs counter: %w", err)
	}
	suspicious, err := m.Int64Counter("track.points.suspicious",
		metric.WithDescription("Points flagged for impossible travel"))
	if err != nil {
		return nil, fmt.Errorf("failed to create track.points.suspicious counter: %w", err)
	}
	jittered, err := m.Int64Counter("track.points.jittered",
		metric.WithDescription("Points displaced for decluttering"))
	if err != nil {
		return nil, fmt.Errorf("failed to create track.points.jittered counter: %w", err)
	}
	return &TrackMetrics{runs: runs, suspicious: suspicious, jittered: jittered}, nil
}

// Record adds one run and its annotation counts. A nil receiver is a no-op.
func (t *TrackMetrics) Record(ctx context.Context, source string, s core.Summary) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	t.runs.Add(ctx, 1, attrs)
	t.suspicious.Add(ctx, int64(s.SuspiciousCount), attrs)
	t.jittered.Add(ctx, int64(s.JitteredCount), attrs)
}
