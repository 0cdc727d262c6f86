package convert

import (
	"encoding/json"
	"fmt"

	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"gorm.io/datatypes"
)

// CoreToSubject converts a core.Subject to a GORM Subject.
func CoreToSubject(s core.Subject) model.Subject {
	return model.Subject{
		ID:              s.ID,
		Name:            s.Name,
		TrackingEnabled: s.TrackingEnabled,
	}
}

// CoreToGPSPoint converts a core.Fix to a GORM GPSPoint.
func CoreToGPSPoint(f core.Fix) model.GPSPoint {
	t := f.Type
	if t == "" {
		t = core.TrackingRoutePoint
	}
	pos := core.LatLng{Lat: f.Latitude, Lng: f.Longitude}
	return model.GPSPoint{
		SubjectID:    f.SubjectID,
		Time:         f.Time.UTC(),
		AttendanceID: f.AttendanceID,
		Latitude:     f.Latitude,
		Longitude:    f.Longitude,
		Position:     geo.PointGeometry(pos),
		TrackingType: string(t),
	}
}

// CoreToTrackRun converts a processed run to its GORM row, encoding the
// annotated points and summary as JSON documents.
func CoreToTrackRun(r core.TrackRun) (model.TrackRun, error) {
	points, err := json.Marshal(r.Points)
	if err != nil {
		return model.TrackRun{}, fmt.Errorf("encode points of run %s: %w", r.ID, err)
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return model.TrackRun{}, fmt.Errorf("encode summary of run %s: %w", r.ID, err)
	}

	return model.TrackRun{
		ID:              r.ID,
		SubjectID:       r.SubjectID,
		Day:             r.Day,
		ProcessedAt:     r.ProcessedAt.UTC(),
		PointCount:      r.Summary.PointCount,
		SuspiciousCount: r.Summary.SuspiciousCount,
		JitteredCount:   r.Summary.JitteredCount,
		AnySuspicious:   r.Summary.AnySuspicious,
		DistanceMeters:  r.Summary.DistanceMeters,
		AverageSpeedKmh: r.Summary.AverageSpeedKmh,
		Points:          datatypes.JSON(points),
		Summary:         datatypes.JSON(summary),
		Route:           geo.RouteLineString(r.Summary.Route),
	}, nil
}
