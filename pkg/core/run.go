// pkg/core/run.go
package core

import "time"

// DayLayout is the calendar-day format used to address a subject's track
const DayLayout = "2006-01-02"

// Summary aggregates a processed track using true (unjittered) coordinates
type Summary struct {
	PointCount      int           `json:"pointCount"`
	SuspiciousCount int           `json:"suspiciousCount"`
	JitteredCount   int           `json:"jitteredCount"`
	AnySuspicious   bool          `json:"anySuspicious"`
	DistanceMeters  float64       `json:"distanceMeters"`
	Duration        time.Duration `json:"duration"`
	AverageSpeedKmh float64       `json:"averageSpeedKmh"`
	SpeedIsUnusual  bool          `json:"speedIsUnusual"`
	Route           []LatLng      `json:"route"`
}

// TrackRun is the persisted result of processing one subject-day
type TrackRun struct {
	ID          string       `json:"id"`
	SubjectID   uint         `json:"subjectId"`
	Day         string       `json:"day"`
	ProcessedAt time.Time    `json:"processedAt"`
	Points      []TrackPoint `json:"points"`
	Summary     Summary      `json:"summary"`
}

// UploadMetadata describes an exported run file for the rendering frontend
type UploadMetadata struct {
	SubjectID     uint
	Day           string
	PointCount    int
	AnySuspicious bool
}
