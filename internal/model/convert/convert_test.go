package convert

import (
	"testing"
	"time"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectRoundTrip(t *testing.T) {
	s := core.Subject{ID: 12, Name: "Meera", TrackingEnabled: true}
	assert.Equal(t, s, SubjectToCore(CoreToSubject(s)))
}

func TestCoreToGPSPoint(t *testing.T) {
	att := uint(99)
	loc := time.FixedZone("IST", 5*3600+1800)
	fix := core.Fix{
		SubjectID:    4,
		AttendanceID: &att,
		Time:         time.Date(2024, 3, 14, 9, 30, 0, 0, loc),
		Latitude:     28.6139,
		Longitude:    77.2090,
	}

	row := CoreToGPSPoint(fix)
	assert.Equal(t, uint(4), row.SubjectID)
	assert.Equal(t, time.UTC, row.Time.Location())
	assert.True(t, row.Time.Equal(fix.Time))
	assert.Equal(t, "route_point", row.TrackingType, "empty type defaults to route_point")

	xy, ok := row.Position.XY()
	require.True(t, ok)
	assert.Equal(t, 77.2090, xy.X)
	assert.Equal(t, 28.6139, xy.Y)

	back := GPSPointToFix(row)
	assert.Equal(t, core.TrackingRoutePoint, back.Type)
	assert.Equal(t, &att, back.AttendanceID)
}

func TestGPSPointToFix_UnknownType(t *testing.T) {
	row := CoreToGPSPoint(core.Fix{Type: core.TrackingCallStart})
	row.TrackingType = "teleport"
	assert.Equal(t, core.TrackingRoutePoint, GPSPointToFix(row).Type)
}

func TestFixesToTrack(t *testing.T) {
	base := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	fixes := []core.Fix{
		{Time: base, Latitude: 1, Longitude: 2, Type: core.TrackingCheckIn},
		{Time: base.Add(time.Minute), Latitude: 3, Longitude: 4, Type: core.TrackingCallStart},
	}

	points := FixesToTrack(fixes)
	require.Len(t, points, 2)
	assert.Equal(t, 1, points[1].SequenceIndex)
	assert.Equal(t, 3.0, points[1].DisplayLatitude)
	assert.True(t, points[1].KindIs(core.TrackingCallStart))
	require.NotNil(t, points[0].Timestamp)
	assert.True(t, points[0].Timestamp.Equal(base))
}

func TestTrackRunRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	orig := 28.6
	run := core.TrackRun{
		ID:          "5a0f0d0e-1111-4a4a-9b9b-000000000001",
		SubjectID:   4,
		Day:         "2024-03-14",
		ProcessedAt: ts,
		Points: []core.TrackPoint{
			core.NewTrackPoint(0, 28.6, 77.2, &ts, nil),
			{
				Latitude: 28.6, Longitude: 77.2, SequenceIndex: 1,
				IsJittered: true, DisplayLatitude: 28.60003, DisplayLongitude: 77.2,
				OriginalLatitude: &orig, OriginalLongitude: &orig,
			},
		},
		Summary: core.Summary{
			PointCount:    2,
			JitteredCount: 1,
			Route:         []core.LatLng{{Lat: 28.6, Lng: 77.2}, {Lat: 28.6, Lng: 77.2}},
		},
	}

	row, err := CoreToTrackRun(run)
	require.NoError(t, err)
	assert.Equal(t, 2, row.PointCount)
	assert.Equal(t, 1, row.JitteredCount)
	assert.Equal(t, 2, row.Route.Coordinates().Length())

	back, err := TrackRunToCore(row)
	require.NoError(t, err)
	if diff := cmp.Diff(run, back); diff != "" {
		t.Errorf("run changed in round trip (-want +got):\n%s", diff)
	}
}

func TestTrackRunToCore_BadJSON(t *testing.T) {
	row, err := CoreToTrackRun(core.TrackRun{ID: "x"})
	require.NoError(t, err)
	row.Points = []byte("{not json")

	_, err = TrackRunToCore(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode points of run x")
}
