// Package track annotates one subject's day of GPS fixes for rendering.
//
// Processing runs in two phases over an ordered point sequence:
//   - Detect flags physically impossible transitions between neighbours.
//   - Declutter spreads visually overlapping points on a small circle so a
//     map can tell them apart, leaving any cluster that holds a suspicious
//     point exactly where it was recorded.
//
// Every phase returns a fresh slice; the caller's points are never mutated.
// The package performs no I/O and never fails on well-formed coordinates.
package track

import (
	"time"

	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// ReasonImpossibleTravel is attached to every point implicated in a suspicious transition.
const ReasonImpossibleTravel = "Impossible travel speed/distance"

// Config holds the detection and decluttering thresholds.
type Config struct {
	// MaxSpeedKmh is the fastest plausible implied speed between neighbours.
	MaxSpeedKmh float64
	// MinElapsed is the noise floor; pairs closer in time are never suspicious.
	MinElapsed time.Duration
	// TeleportDistanceMeters and TeleportWindow flag long jumps in a short window
	// independently of the speed rule.
	TeleportDistanceMeters float64
	TeleportWindow         time.Duration
	// ClusterThresholdDegrees is the clustering radius in degrees of arc.
	ClusterThresholdDegrees float64
	// JitterRadiusDegrees is the radius of the circle decluttered points are placed on.
	JitterRadiusDegrees float64
	// UnusualAverageSpeedKmh marks a whole day as unusually fast in the summary.
	UnusualAverageSpeedKmh float64
}

// DefaultConfig returns the thresholds used for two-wheeler field staff.
func DefaultConfig() Config {
	return Config{
		MaxSpeedKmh:             120,
		MinElapsed:              10 * time.Second,
		TeleportDistanceMeters:  50000,
		TeleportWindow:          300 * time.Second,
		ClusterThresholdDegrees: 0.0001,
		JitterRadiusDegrees:     0.00003,
		UnusualAverageSpeedKmh:  100,
	}
}

// ClusterThresholdMeters converts the clustering radius to meters on the haversine sphere.
func (c Config) ClusterThresholdMeters() float64 {
	return geo.DegreesToMeters(c.ClusterThresholdDegrees)
}

// Processor runs the detection and decluttering pipeline with a fixed Config.
// It holds no mutable state and is safe for concurrent use.
type Processor struct {
	cfg Config
}

// New creates a Processor. Zero-valued thresholds fall back to DefaultConfig.
func New(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = def.MaxSpeedKmh
	}
	if cfg.MinElapsed <= 0 {
		cfg.MinElapsed = def.MinElapsed
	}
	if cfg.TeleportDistanceMeters <= 0 {
		cfg.TeleportDistanceMeters = def.TeleportDistanceMeters
	}
	if cfg.TeleportWindow <= 0 {
		cfg.TeleportWindow = def.TeleportWindow
	}
	if cfg.ClusterThresholdDegrees <= 0 {
		cfg.ClusterThresholdDegrees = def.ClusterThresholdDegrees
	}
	if cfg.JitterRadiusDegrees <= 0 {
		cfg.JitterRadiusDegrees = def.JitterRadiusDegrees
	}
	if cfg.UnusualAverageSpeedKmh <= 0 {
		cfg.UnusualAverageSpeedKmh = def.UnusualAverageSpeedKmh
	}
	return &Processor{cfg: cfg}
}

// Config returns the effective thresholds.
func (p *Processor) Config() Config {
	return p.cfg
}

// Process runs Detect then Declutter. Sequences shorter than two points are
// returned as an unchanged copy.
func (p *Processor) Process(points []core.TrackPoint) []core.TrackPoint {
	if len(points) < 2 {
		return core.ClonePoints(points)
	}
	return p.Declutter(p.Detect(points))
}

// Result bundles everything a renderer needs for one processed day.
type Result struct {
	Points  []core.TrackPoint `json:"points"`
	Markers []Marker          `json:"markers"`
	Summary core.Summary      `json:"summary"`
}

// Run processes the points and derives markers and the summary from the output.
func (p *Processor) Run(points []core.TrackPoint) Result {
	processed := p.Process(points)
	return Result{
		Points:  processed,
		Markers: Classify(processed),
		Summary: p.Summarize(processed),
	}
}
