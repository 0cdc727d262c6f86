package track

import (
	"math"
	"time"

	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// Segment describes the transition between two neighbouring points.
type Segment struct {
	From           int           `json:"from"`
	To             int           `json:"to"`
	DistanceMeters float64       `json:"distanceMeters"`
	Elapsed        time.Duration `json:"elapsed"`
	Timed          bool          `json:"timed"`
	SpeedKmh       float64       `json:"speedKmh"`
	Suspicious     bool          `json:"suspicious"`
}

// evaluate measures the pair (a, b) and decides whether the transition is plausible.
func (p *Processor) evaluate(from, to int, a, b core.TrackPoint) Segment {
	seg := Segment{
		From:           from,
		To:             to,
		DistanceMeters: geo.HaversineMeters(a.Position(), b.Position()),
	}
	if a.Timestamp == nil || b.Timestamp == nil {
		return seg
	}

	seg.Timed = true
	elapsed := b.Timestamp.Sub(*a.Timestamp)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	seg.Elapsed = elapsed

	seconds := elapsed.Seconds()
	if seconds > 0 {
		seg.SpeedKmh = (seg.DistanceMeters / 1000) / (seconds / 3600)
	}

	if elapsed < p.cfg.MinElapsed {
		return seg
	}

	highSpeed := seg.SpeedKmh > p.cfg.MaxSpeedKmh
	teleport := seg.DistanceMeters > p.cfg.TeleportDistanceMeters && elapsed < p.cfg.TeleportWindow
	seg.Suspicious = highSpeed || teleport
	return seg
}

// Segments evaluates every adjacent pair in sequence order.
func (p *Processor) Segments(points []core.TrackPoint) []Segment {
	if len(points) < 2 {
		return nil
	}
	segs := make([]Segment, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		segs = append(segs, p.evaluate(i-1, i, points[i-1], points[i]))
	}
	return segs
}

// Detect returns a copy of points in which both endpoints of every
// implausible transition are marked suspicious. Existing marks are kept.
func (p *Processor) Detect(points []core.TrackPoint) []core.TrackPoint {
	out := core.ClonePoints(points)
	for _, seg := range p.Segments(out) {
		if !seg.Suspicious {
			continue
		}
		markSuspicious(&out[seg.From])
		markSuspicious(&out[seg.To])
	}
	return out
}

func markSuspicious(pt *core.TrackPoint) {
	pt.Suspicious = true
	pt.SuspiciousReason = ReasonImpossibleTravel
}

// MaxSpeedKmh returns the fastest timed segment speed, ignoring pairs under the noise floor.
func (p *Processor) MaxSpeedKmh(points []core.TrackPoint) float64 {
	best := 0.0
	for _, seg := range p.Segments(points) {
		if seg.Timed && seg.Elapsed >= p.cfg.MinElapsed {
			best = math.Max(best, seg.SpeedKmh)
		}
	}
	return best
}
