// pkg/core/types.go
package core

import (
	"errors"
	"fmt"
)

// ErrTrackingDisabled is returned when a fix arrives for a subject whose GPS tracking is off
var ErrTrackingDisabled = errors.New("gps tracking is disabled for subject")

// ErrNotFound is returned by lookups of unknown subjects and runs
var ErrNotFound = errors.New("not found")

// LatLng is a WGS84 coordinate pair in decimal degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TrackingType tags why a fix was recorded
type TrackingType string

const (
	TrackingCheckIn    TrackingType = "check_in"
	TrackingCheckOut   TrackingType = "check_out"
	TrackingCallStart  TrackingType = "call_start"
	TrackingCallEnd    TrackingType = "call_end"
	TrackingRoutePoint TrackingType = "route_point"
)

// ParseTrackingType validates a tracking type string. Empty input yields route_point.
func ParseTrackingType(s string) (TrackingType, error) {
	switch t := TrackingType(s); t {
	case "":
		return TrackingRoutePoint, nil
	case TrackingCheckIn, TrackingCheckOut, TrackingCallStart, TrackingCallEnd, TrackingRoutePoint:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tracking type %q", s)
	}
}

// Ptr returns a pointer to the tracking type, for use in optional fields
func (t TrackingType) Ptr() *TrackingType {
	return &t
}
