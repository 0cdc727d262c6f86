package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// segmentLabel names a segment by the wall-clock time of its end point.
func segmentLabel(points []core.TrackPoint, s track.Segment) string {
	if ts := points[s.To].Timestamp; ts != nil {
		return ts.UTC().Format("15:04:05")
	}
	return "#" + strconv.Itoa(s.To+1)
}

// SpeedChart renders the per-segment speed profile of a run as a standalone
// HTML page. Untimed segments are left as gaps; suspicious segments are
// drawn as diamonds and the speed limit is drawn as a mark line.
func SpeedChart(w io.Writer, run core.TrackRun, p *track.Processor) error {
	segs := p.Segments(run.Points)

	labels := make([]string, len(segs))
	speeds := make([]opts.LineData, len(segs))
	for i, s := range segs {
		labels[i] = segmentLabel(run.Points, s)
		switch {
		case !s.Timed:
			speeds[i] = opts.LineData{Value: "-"}
		case s.Suspicious:
			speeds[i] = opts.LineData{
				Value:      s.SpeedKmh,
				Symbol:     "diamond",
				SymbolSize: 12,
			}
		default:
			speeds[i] = opts.LineData{Value: s.SpeedKmh}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track speed profile", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Subject %d on %s", run.SubjectID, run.Day),
			Subtitle: fmt.Sprintf("points=%d suspicious=%d avg=%.1f km/h", run.Summary.PointCount, run.Summary.SuspiciousCount, run.Summary.AverageSpeedKmh),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (UTC)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km/h", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(labels).
		AddSeries("speed", speeds,
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
				Name:  "max speed",
				YAxis: p.Config().MaxSpeedKmh,
			}),
		)

	return line.Render(w)
}
