package track

import (
	"testing"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name  string
		point core.TrackPoint
		index int
		want  MarkerClass
	}{
		{"first", core.TrackPoint{}, 0, MarkerStart},
		{"last", core.TrackPoint{}, 4, MarkerEnd},
		{"middle", core.TrackPoint{}, 2, MarkerRoute},
		{"suspicious first", core.TrackPoint{Suspicious: true}, 0, MarkerSuspiciousStart},
		{"suspicious last", core.TrackPoint{Suspicious: true}, 4, MarkerSuspiciousEnd},
		{"suspicious middle", core.TrackPoint{Suspicious: true}, 1, MarkerSuspicious},
		{"jittered", core.TrackPoint{IsJittered: true}, 0, MarkerClustered},
		{"suspicious and jittered", core.TrackPoint{Suspicious: true, IsJittered: true}, 2, MarkerClustered},
		{"call start", core.TrackPoint{Kind: core.TrackingCallStart.Ptr()}, 0, MarkerCallStart},
		{"call end", core.TrackPoint{Kind: core.TrackingCallEnd.Ptr()}, 4, MarkerCallEnd},
		{"check in", core.TrackPoint{Kind: core.TrackingCheckIn.Ptr()}, 0, MarkerStart},
		{"jittered call", core.TrackPoint{IsJittered: true, Kind: core.TrackingCallStart.Ptr()}, 1, MarkerClustered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.point, tt.index, 5))
		})
	}
}

func TestClassifyUsesDisplayPosition(t *testing.T) {
	orig := 28.6
	points := []core.TrackPoint{
		core.NewTrackPoint(0, 28.6, 77.2, nil, nil),
		{
			Latitude: 28.6, Longitude: 77.2,
			DisplayLatitude: 28.60003, DisplayLongitude: 77.2,
			IsJittered: true, OriginalLatitude: &orig, OriginalLongitude: &orig,
		},
	}

	markers := Classify(points)
	require.Len(t, markers, 2)
	assert.Equal(t, MarkerStart, markers[0].Class)
	assert.Equal(t, "Start Point", markers[0].Title)
	assert.Equal(t, "1", markers[0].Label)
	assert.Equal(t, MarkerClustered, markers[1].Class)
	assert.Equal(t, "Clustered Point", markers[1].Title)
	assert.Equal(t, "2", markers[1].Label)
	assert.Equal(t, core.LatLng{Lat: 28.60003, Lng: 77.2}, markers[1].Position)
}
