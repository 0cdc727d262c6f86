// pkg/core/point.go
package core

import "time"

// TrackPoint is one observed position of a subject, plus the annotations
// added by suspicion detection and decluttering.
type TrackPoint struct {
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	Timestamp     *time.Time    `json:"timestamp,omitempty"`
	SequenceIndex int           `json:"sequenceIndex"`
	Kind          *TrackingType `json:"kind,omitempty"`

	Suspicious       bool   `json:"suspicious"`
	SuspiciousReason string `json:"suspiciousReason,omitempty"`

	IsJittered        bool     `json:"isJittered"`
	DisplayLatitude   float64  `json:"displayLatitude"`
	DisplayLongitude  float64  `json:"displayLongitude"`
	OriginalLatitude  *float64 `json:"originalLatitude,omitempty"`
	OriginalLongitude *float64 `json:"originalLongitude,omitempty"`
}

// NewTrackPoint builds an unannotated point whose display position equals its true position
func NewTrackPoint(index int, lat, lng float64, ts *time.Time, kind *TrackingType) TrackPoint {
	return TrackPoint{
		Latitude:         lat,
		Longitude:        lng,
		Timestamp:        ts,
		SequenceIndex:    index,
		Kind:             kind,
		DisplayLatitude:  lat,
		DisplayLongitude: lng,
	}
}

// Position returns the true coordinates of the point
func (p TrackPoint) Position() LatLng {
	return LatLng{Lat: p.Latitude, Lng: p.Longitude}
}

// DisplayPosition returns the coordinates a renderer should draw the point at
func (p TrackPoint) DisplayPosition() LatLng {
	return LatLng{Lat: p.DisplayLatitude, Lng: p.DisplayLongitude}
}

// KindIs reports whether the point carries the given tracking type
func (p TrackPoint) KindIs(t TrackingType) bool {
	return p.Kind != nil && *p.Kind == t
}

// Clone returns a deep copy so that annotating the copy never touches the receiver
func (p TrackPoint) Clone() TrackPoint {
	c := p
	if p.Timestamp != nil {
		ts := *p.Timestamp
		c.Timestamp = &ts
	}
	if p.Kind != nil {
		k := *p.Kind
		c.Kind = &k
	}
	if p.OriginalLatitude != nil {
		v := *p.OriginalLatitude
		c.OriginalLatitude = &v
	}
	if p.OriginalLongitude != nil {
		v := *p.OriginalLongitude
		c.OriginalLongitude = &v
	}
	return c
}

// ClonePoints deep-copies a sequence of points
func ClonePoints(points []TrackPoint) []TrackPoint {
	if points == nil {
		return nil
	}
	out := make([]TrackPoint, len(points))
	for i, p := range points {
		out[i] = p.Clone()
	}
	return out
}
