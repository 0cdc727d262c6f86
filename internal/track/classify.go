package track

import (
	"strconv"

	"github.com/fieldtrack/trackcheck/pkg/core"
)

// MarkerClass is the rendering category of a processed point.
type MarkerClass string

const (
	MarkerSuspiciousStart MarkerClass = "suspicious_start"
	MarkerSuspiciousEnd   MarkerClass = "suspicious_end"
	MarkerSuspicious      MarkerClass = "suspicious"
	MarkerClustered       MarkerClass = "clustered"
	MarkerCallStart       MarkerClass = "call_start"
	MarkerCallEnd         MarkerClass = "call_end"
	MarkerStart           MarkerClass = "start"
	MarkerEnd             MarkerClass = "end"
	MarkerRoute           MarkerClass = "route"
)

var markerTitles = map[MarkerClass]string{
	MarkerSuspiciousStart: "Suspicious Start Point",
	MarkerSuspiciousEnd:   "Suspicious End Point",
	MarkerSuspicious:      "Suspicious Point",
	MarkerClustered:       "Clustered Point",
	MarkerCallStart:       "Call Start Point",
	MarkerCallEnd:         "Call End Point",
	MarkerStart:           "Start Point",
	MarkerEnd:             "End Point",
	MarkerRoute:           "Route Point",
}

// Title returns the human readable marker name.
func (m MarkerClass) Title() string {
	return markerTitles[m]
}

// Marker is one renderable point.
type Marker struct {
	Index    int         `json:"index"`
	Class    MarkerClass `json:"class"`
	Title    string      `json:"title"`
	Label    string      `json:"label"`
	Position core.LatLng `json:"position"`
	Reason   string      `json:"reason,omitempty"`
}

// ClassOf picks the marker class for the point at index i of a sequence of length n.
func ClassOf(pt core.TrackPoint, i, n int) MarkerClass {
	last := n - 1
	switch {
	case pt.Suspicious && !pt.IsJittered:
		switch i {
		case 0:
			return MarkerSuspiciousStart
		case last:
			return MarkerSuspiciousEnd
		default:
			return MarkerSuspicious
		}
	case pt.IsJittered:
		return MarkerClustered
	case pt.KindIs(core.TrackingCallStart):
		return MarkerCallStart
	case pt.KindIs(core.TrackingCallEnd):
		return MarkerCallEnd
	case i == 0:
		return MarkerStart
	case i == last:
		return MarkerEnd
	default:
		return MarkerRoute
	}
}

// Classify returns one marker per processed point, positioned at its display coordinates.
func Classify(points []core.TrackPoint) []Marker {
	markers := make([]Marker, len(points))
	for i, pt := range points {
		class := ClassOf(pt, i, len(points))
		markers[i] = Marker{
			Index:    i,
			Class:    class,
			Title:    class.Title(),
			Label:    strconv.Itoa(i + 1),
			Position: pt.DisplayPosition(),
			Reason:   pt.SuspiciousReason,
		}
	}
	return markers
}
