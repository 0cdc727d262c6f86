// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// SubjectToCore converts a GORM Subject to a core.Subject.
func SubjectToCore(s model.Subject) core.Subject {
	return core.Subject{
		ID:              s.ID,
		Name:            s.Name,
		TrackingEnabled: s.TrackingEnabled,
	}
}

// GPSPointToFix converts a stored fix back to its core form.
func GPSPointToFix(p model.GPSPoint) core.Fix {
	t, err := core.ParseTrackingType(p.TrackingType)
	if err != nil {
		t = core.TrackingRoutePoint
	}
	return core.Fix{
		SubjectID:    p.SubjectID,
		AttendanceID: p.AttendanceID,
		Time:         p.Time,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Type:         t,
	}
}

// FixesToTrack turns time-ordered fixes into an unannotated point sequence.
func FixesToTrack(fixes []core.Fix) []core.TrackPoint {
	points := make([]core.TrackPoint, len(fixes))
	for i, f := range fixes {
		ts := f.Time
		points[i] = core.NewTrackPoint(i, f.Latitude, f.Longitude, &ts, f.Type.Ptr())
	}
	return points
}

// TrackRunToCore decodes a stored run.
func TrackRunToCore(r model.TrackRun) (core.TrackRun, error) {
	run := core.TrackRun{
		ID:          r.ID,
		SubjectID:   r.SubjectID,
		Day:         r.Day,
		ProcessedAt: r.ProcessedAt,
	}
	if len(r.Points) > 0 {
		if err := json.Unmarshal(r.Points, &run.Points); err != nil {
			return core.TrackRun{}, fmt.Errorf("decode points of run %s: %w", r.ID, err)
		}
	}
	if len(r.Summary) > 0 {
		if err := json.Unmarshal(r.Summary, &run.Summary); err != nil {
			return core.TrackRun{}, fmt.Errorf("decode summary of run %s: %w", r.ID, err)
		}
	}
	return run, nil
}
