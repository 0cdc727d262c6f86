package track

import (
	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// Cluster partitions the point indices into groups of points lying within
// the clustering threshold of the group's anchor, the first point placed
// in it. Singletons are included; indices keep insertion order.
func (p *Processor) Cluster(points []core.TrackPoint) [][]int {
	threshold := p.cfg.ClusterThresholdMeters()
	processed := make([]bool, len(points))
	clusters := make([][]int, 0, len(points))

	for i := range points {
		if processed[i] {
			continue
		}
		cluster := []int{i}
		processed[i] = true
		anchor := points[i].Position()

		for j := i + 1; j < len(points); j++ {
			if processed[j] {
				continue
			}
			if geo.HaversineMeters(anchor, points[j].Position()) <= threshold {
				cluster = append(cluster, j)
				processed[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}

	return clusters
}
