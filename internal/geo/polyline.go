package geo

import (
	"encoding/json"
	"fmt"

	"github.com/fieldtrack/trackcheck/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// RouteLineString builds a WGS84 LineString (x=lng, y=lat) from a route.
// Routes with fewer than two positions produce an empty LineString.
func RouteLineString(route []core.LatLng) geom.LineString {
	if len(route) < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, 0, len(route)*2)
	for _, p := range route {
		flat = append(flat, p.Lng, p.Lat)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// ParseRoute parses a JSON array of [lng,lat] pairs, the GeoJSON axis order.
// Input format: "[[lng1,lat1],[lng2,lat2],...]"
func ParseRoute(input string) ([]core.LatLng, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse route JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("route must have at least 2 points, got %d", len(coords))
	}

	route := make([]core.LatLng, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		if !ValidLatLng(coord[1], coord[0]) {
			return nil, fmt.Errorf("coordinate %d: %w", i, ErrInvalidCoordinates)
		}
		route[i] = core.LatLng{Lat: coord[1], Lng: coord[0]}
	}

	return route, nil
}
