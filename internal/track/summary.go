package track

import (
	"time"

	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// Summarize computes day totals over the true coordinates of processed points.
func (p *Processor) Summarize(points []core.TrackPoint) core.Summary {
	s := core.Summary{
		PointCount: len(points),
		Route:      make([]core.LatLng, 0, len(points)),
	}

	var first, last *time.Time
	legs := make([]float64, 0, len(points))
	for i, pt := range points {
		s.Route = append(s.Route, pt.Position())
		if pt.Suspicious {
			s.SuspiciousCount++
		}
		if pt.IsJittered {
			s.JitteredCount++
		}
		if i > 0 {
			legs = append(legs, geo.HaversineMeters(points[i-1].Position(), pt.Position()))
		}
		if pt.Timestamp != nil {
			if first == nil {
				first = pt.Timestamp
			}
			last = pt.Timestamp
		}
	}

	s.AnySuspicious = s.SuspiciousCount > 0
	s.DistanceMeters = floats.Sum(legs)
	if first != nil && last != nil {
		s.Duration = last.Sub(*first)
		if s.Duration < 0 {
			s.Duration = -s.Duration
		}
	}
	if hours := s.Duration.Hours(); hours > 0 {
		s.AverageSpeedKmh = (s.DistanceMeters / 1000) / hours
	}
	s.SpeedIsUnusual = s.AverageSpeedKmh > p.cfg.UnusualAverageSpeedKmh
	return s
}
