package report

import (
	"fmt"
	"io"

	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SpeedPlotPNG writes the speed profile of a run as a PNG for email digests.
// X is minutes since the first timestamped point; untimed segments are skipped.
func SpeedPlotPNG(w io.Writer, run core.TrackRun, p *track.Processor) error {
	var origin *core.TrackPoint
	for i := range run.Points {
		if run.Points[i].Timestamp != nil {
			origin = &run.Points[i]
			break
		}
	}

	pts := make(plotter.XYs, 0, len(run.Points))
	flagged := make(plotter.XYs, 0)
	if origin != nil {
		for _, s := range p.Segments(run.Points) {
			if !s.Timed {
				continue
			}
			x := run.Points[s.To].Timestamp.Sub(*origin.Timestamp).Minutes()
			pts = append(pts, plotter.XY{X: x, Y: s.SpeedKmh})
			if s.Suspicious {
				flagged = append(flagged, plotter.XY{X: x, Y: s.SpeedKmh})
			}
		}
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Subject %d on %s", run.SubjectID, run.Day)
	pl.X.Label.Text = "minutes"
	pl.Y.Label.Text = "km/h"

	if len(pts) > 0 {
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build speed line: %w", err)
		}
		l.Width = vg.Points(1)
		pl.Add(l)
	}
	if len(flagged) > 0 {
		s, err := plotter.NewScatter(flagged)
		if err != nil {
			return fmt.Errorf("failed to build suspicious markers: %w", err)
		}
		pl.Add(s)
		pl.Legend.Add("suspicious", s)
	}
	pl.Add(plotter.NewGrid())

	wt, err := pl.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
