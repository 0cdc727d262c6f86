package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/fieldtrack/trackcheck/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EarthRadiusMeters is the mean Earth radius. Every spatial comparison in
// the module goes through HaversineMeters with this radius.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(a, b core.LatLng) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	dPhi := toRadians(b.Lat - a.Lat)
	dLambda := toRadians(b.Lng - a.Lng)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// DegreesToMeters converts an angular distance into the arc length it spans
// on the haversine sphere (0.0001° ≈ 11.12 m).
func DegreesToMeters(deg float64) float64 {
	return toRadians(deg) * EarthRadiusMeters
}

// ValidLatLng reports whether the pair is a finite WGS84 coordinate.
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// LatLngFromString parses a "lat,lng" string. Extra components (altitude,
// accuracy) reported by some devices are ignored.
func LatLngFromString(coords string) (core.LatLng, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	if !ValidLatLng(lat, lng) {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	return core.LatLng{Lat: lat, Lng: lng}, nil
}

// WebMercator projects a WGS84 coordinate (EPSG:4326) to a Web Mercator
// point (EPSG:3857), the projection tile renderers draw in.
func WebMercator(p core.LatLng) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(p.Lng, p.Lat, 0)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
}

// PointGeometry returns the WGS84 point geometry (x=lng, y=lat) used for storage.
func PointGeometry(p core.LatLng) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.Lng, Y: p.Lat},
		Type: geom.DimXY,
	})
}
