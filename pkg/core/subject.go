// pkg/core/subject.go
package core

import "time"

// Subject is a tracked field employee
type Subject struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	TrackingEnabled bool   `json:"trackingEnabled"`
}

// Fix is a raw position reported by a device before it is placed in a day sequence
type Fix struct {
	SubjectID    uint
	AttendanceID *uint
	Time         time.Time
	Latitude     float64
	Longitude    float64
	Type         TrackingType
}
