// Package report renders processed runs for external map and chart frontends.
// Nothing here draws; it produces documents that renderers consume.
package report

import (
	"time"

	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func orbPoint(p core.LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// GeoJSON builds a FeatureCollection for a run: the route as a LineString
// over true coordinates, then one Point per processed point at its display
// position. Jittered points carry their true position in properties and
// every point its EPSG:3857 display position for tile renderers.
func GeoJSON(run core.TrackRun) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(run.Summary.Route) >= 2 {
		line := make(orb.LineString, len(run.Summary.Route))
		for i, p := range run.Summary.Route {
			line[i] = orbPoint(p)
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["subjectId"] = run.SubjectID
		f.Properties["day"] = run.Day
		f.Properties["distanceMeters"] = run.Summary.DistanceMeters
		f.Properties["averageSpeedKmh"] = run.Summary.AverageSpeedKmh
		f.Properties["speedIsUnusual"] = run.Summary.SpeedIsUnusual
		fc.Append(f)
	}

	for _, m := range track.Classify(run.Points) {
		pt := run.Points[m.Index]
		f := geojson.NewFeature(orbPoint(m.Position))
		f.Properties["kind"] = "marker"
		f.Properties["index"] = m.Index
		f.Properties["class"] = string(m.Class)
		f.Properties["title"] = m.Title
		f.Properties["label"] = m.Label
		f.Properties["suspicious"] = pt.Suspicious
		f.Properties["jittered"] = pt.IsJittered
		if xy, ok := geo.WebMercator(m.Position).XY(); ok {
			f.Properties["mercator"] = []float64{xy.X, xy.Y}
		}
		if m.Reason != "" {
			f.Properties["reason"] = m.Reason
		}
		if pt.Kind != nil {
			f.Properties["trackingType"] = string(*pt.Kind)
		}
		if pt.Timestamp != nil {
			f.Properties["time"] = pt.Timestamp.UTC().Format(time.RFC3339)
		}
		if pt.IsJittered {
			f.Properties["trueLatitude"] = pt.Latitude
			f.Properties["trueLongitude"] = pt.Longitude
		}
		fc.Append(f)
	}

	return fc
}
