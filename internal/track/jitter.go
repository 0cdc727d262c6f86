package track

import (
	"math"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// Declutter returns a copy of points in which every non-anchor member of a
// multi-point cluster is moved onto a circle around the cluster centroid.
// Clusters containing a suspicious point are left untouched. Points that
// are not moved display at their true coordinates.
func (p *Processor) Declutter(points []core.TrackPoint) []core.TrackPoint {
	out := core.ClonePoints(points)
	if len(out) < 2 {
		return out
	}

	// jitter from an earlier pass is recomputed from scratch
	for i := range out {
		out[i].IsJittered = false
		out[i].OriginalLatitude = nil
		out[i].OriginalLongitude = nil
		out[i].DisplayLatitude = out[i].Latitude
		out[i].DisplayLongitude = out[i].Longitude
	}

	for _, cluster := range p.Cluster(out) {
		if len(cluster) < 2 || anySuspicious(out, cluster) {
			continue
		}
		p.spread(out, cluster)
	}

	return out
}

func anySuspicious(points []core.TrackPoint, cluster []int) bool {
	for _, idx := range cluster {
		if points[idx].Suspicious {
			return true
		}
	}
	return false
}

// spread places member k of the cluster at angle 2πk/n around the centroid,
// cosine on latitude and sine on longitude. The anchor (k = 0) stays put.
func (p *Processor) spread(points []core.TrackPoint, cluster []int) {
	lats := make([]float64, len(cluster))
	lngs := make([]float64, len(cluster))
	for k, idx := range cluster {
		lats[k] = points[idx].Latitude
		lngs[k] = points[idx].Longitude
	}
	centerLat := stat.Mean(lats, nil)
	centerLng := stat.Mean(lngs, nil)

	radius := p.cfg.JitterRadiusDegrees
	n := float64(len(cluster))
	for k, idx := range cluster {
		if k == 0 {
			continue
		}
		angle := 2 * math.Pi * float64(k) / n
		pt := &points[idx]

		origLat, origLng := pt.Latitude, pt.Longitude
		pt.OriginalLatitude = &origLat
		pt.OriginalLongitude = &origLng
		pt.DisplayLatitude = centerLat + radius*math.Cos(angle)
		pt.DisplayLongitude = centerLng + radius*math.Sin(angle)
		pt.IsJittered = true
	}
}
