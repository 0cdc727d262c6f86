package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Subject{},
	&GPSPoint{},
	&TrackRun{},
	&ServicePerformance{},
}

////////////////////////
// SUBJECTS
////////////////////////

// Subject is a field employee whose device reports positions
type Subject struct {
	ID              uint `gorm:"primarykey;autoIncrement:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Name            string `json:"name" gorm:"size:255"`
	TrackingEnabled bool   `json:"trackingEnabled"`
}

func (*Subject) TableName() string {
	return "subjects"
}

////////////////////////
// POSITIONS
////////////////////////

// GPSPoint is one raw fix. Position duplicates Latitude/Longitude as a
// geometry (x = longitude, y = latitude) for spatial queries in PostGIS.
type GPSPoint struct {
	ID           uint       `json:"id" gorm:"primarykey;autoIncrement"`
	SubjectID    uint       `json:"subjectId" gorm:"index:idx_gps_subject_time,priority:1"`
	Subject      Subject    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SubjectID;"`
	Time         time.Time  `json:"time" gorm:"index:idx_gps_subject_time,priority:2"`
	AttendanceID *uint      `json:"attendanceId"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Position     geom.Point `json:"-"`
	TrackingType string     `json:"trackingType" gorm:"size:32;default:route_point"`
}

func (*GPSPoint) TableName() string {
	return "gps_points"
}

////////////////////////
// RESULTS
////////////////////////

// TrackRun is a processed subject-day. Points and Summary hold the JSON
// documents handed to renderers; Route is the true-coordinate polyline.
type TrackRun struct {
	ID              string          `json:"id" gorm:"primarykey;size:36"`
	SubjectID       uint            `json:"subjectId" gorm:"index:idx_run_subject_day,priority:1"`
	Day             string          `json:"day" gorm:"size:10;index:idx_run_subject_day,priority:2"`
	ProcessedAt     time.Time       `json:"processedAt" gorm:"index"`
	PointCount      int             `json:"pointCount"`
	SuspiciousCount int             `json:"suspiciousCount"`
	JitteredCount   int             `json:"jitteredCount"`
	AnySuspicious   bool            `json:"anySuspicious"`
	DistanceMeters  float64         `json:"distanceMeters"`
	AverageSpeedKmh float64         `json:"averageSpeedKmh"`
	Points          datatypes.JSON  `json:"points"`
	Summary         datatypes.JSON  `json:"summary"`
	Route           geom.LineString `json:"-"`
}

func (*TrackRun) TableName() string {
	return "track_runs"
}

// LatestRun loads the most recent run of a subject-day into r.
func LatestRun(db *gorm.DB, subjectID uint, day string, r *TrackRun) error {
	return db.Where("subject_id = ? AND day = ?", subjectID, day).
		Order("processed_at DESC").
		First(r).Error
}

////////////////////////
// SERVICE MODELS
////////////////////////

// ServicePerformance is a periodic snapshot of the service status
type ServicePerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_perf_time"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	DispatchQueues      datatypes.JSON    `json:"dispatchQueues"`
	RunsProcessed       int               `json:"runsProcessed"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*ServicePerformance) TableName() string {
	return "service_performances"
}

// WriteQueueLengths holds pending rows per storage queue
type WriteQueueLengths struct {
	Subjects  int `json:"subjects"`
	GPSPoints int `json:"gpsPoints"`
	TrackRuns int `json:"trackRuns"`
}
