package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/dispatcher"
	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/internal/report"
	"github.com/fieldtrack/trackcheck/internal/storage"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// openOutput returns stdout for "" or "-", otherwise creates path.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeJSON(path string, v any) (err error) {
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPoints loads a JSON array of point objects, or a bare GeoJSON-order
// [[lng,lat],...] route without timestamps. Sequence indexes follow array
// order and display coordinates start at the true coordinates.
func readPoints(r io.Reader) ([]core.TrackPoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw []core.TrackPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		route, rerr := geo.ParseRoute(string(data))
		if rerr != nil {
			return nil, fmt.Errorf("failed to decode points: %w", err)
		}
		raw = make([]core.TrackPoint, len(route))
		for i, p := range route {
			raw[i] = core.TrackPoint{Latitude: p.Lat, Longitude: p.Lng}
		}
	}
	points := make([]core.TrackPoint, len(raw))
	for i, p := range raw {
		points[i] = core.NewTrackPoint(i, p.Latitude, p.Longitude, p.Timestamp, p.Kind)
	}
	return points, nil
}

// runProcess annotates a points file without touching storage.
func (a *app) runProcess(args []string) error {
	fset := flag.NewFlagSet("process", flag.ContinueOnError)
	out := fset.String("o", "-", "output file for the annotated result")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("usage: process [-o out.json] <points.json>")
	}

	f, err := os.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	points, err := readPoints(f)
	if err != nil {
		return err
	}

	res := track.New(config.GetProcessorConfig()).Run(points)
	a.logger.Info("Processed points file", "file", fset.Arg(0),
		"points", res.Summary.PointCount,
		"suspicious", res.Summary.SuspiciousCount,
		"jittered", res.Summary.JitteredCount)
	return writeJSON(*out, res)
}

// parseCommandLine decodes one replay line: a JSON array whose first element
// is the command and the rest its args.
func parseCommandLine(line string) (dispatcher.Event, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return dispatcher.Event{}, false, nil
	}
	var fields []string
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return dispatcher.Event{}, false, err
	}
	if len(fields) == 0 {
		return dispatcher.Event{}, false, nil
	}
	return dispatcher.Event{Command: fields[0], Args: fields[1:], Source: "replay"}, true, nil
}

// runReplay feeds a recorded command log through the dispatcher. :PROCESS:
// commands run after the dispatcher drained so every buffered fix is stored.
func (a *app) runReplay(args []string) error {
	fset := flag.NewFlagSet("replay", flag.ContinueOnError)
	upload := fset.Bool("upload", false, "upload exported runs to the rendering frontend")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("usage: replay [-upload] <commands.jsonl>")
	}

	f, err := os.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	var processes []dispatcher.Event
	var dispatched, failed int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		e, ok, err := parseCommandLine(scanner.Text())
		if err != nil {
			a.logger.Warn("Skipping malformed command line", "line", lineNo, "error", err)
			failed++
			continue
		}
		if !ok {
			continue
		}
		e.Timestamp = time.Now()
		if e.Command == ":PROCESS:" {
			processes = append(processes, e)
			continue
		}
		if _, err := a.dispatcher.Dispatch(e); err != nil {
			failed++
			continue
		}
		dispatched++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", fset.Arg(0), err)
	}

	a.dispatcher.Close()

	ctx := context.Background()
	for _, e := range processes {
		result, err := a.dispatcher.Dispatch(e)
		if err != nil {
			failed++
			continue
		}
		run, ok := result.(core.TrackRun)
		if !ok {
			continue
		}
		dispatched++
		fmt.Printf("%d\t%s\tpoints=%d\tsuspicious=%d\tjittered=%d\n",
			run.SubjectID, run.Day, run.Summary.PointCount,
			run.Summary.SuspiciousCount, run.Summary.JitteredCount)

		if *upload {
			a.uploadExport(ctx)
		}
	}

	a.logger.Info("Replay complete", "dispatched", dispatched, "failed", failed, "processed", len(processes))
	if failed > 0 {
		return fmt.Errorf("%d commands failed, see log", failed)
	}
	return nil
}

// uploadExport sends the file the backend exported last, if it exports at all.
func (a *app) uploadExport(ctx context.Context) {
	up, ok := a.backend.(storage.Uploadable)
	if !ok {
		a.logger.Warn("Storage backend does not export files, nothing to upload")
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}
	if err := a.api.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		a.logger.Error("Failed to upload run", "file", path, "error", err)
		return
	}
	a.logger.Info("Uploaded run", "file", path)
}

// runExport processes a stored subject-day and writes its renderings.
func (a *app) runExport(args []string) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fset.String("o", "-", "GeoJSON output file")
	chart := fset.String("chart", "", "write the speed chart HTML to this file")
	plot := fset.String("plot", "", "write the speed plot PNG to this file")
	upload := fset.Bool("upload", false, "upload the GeoJSON file to the rendering frontend")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 2 {
		return errors.New("usage: export [-o out.geojson] [-chart f.html] [-plot f.png] [-upload] <subject> <day>")
	}

	subjectID, err := util.ParseUint(fset.Arg(0))
	if err != nil {
		return err
	}
	day := fset.Arg(1)

	ctx := context.Background()
	run, err := a.worker.Track(ctx, subjectID, day, "cli")
	if err != nil {
		return err
	}

	if err := writeJSON(*out, report.GeoJSON(run)); err != nil {
		return fmt.Errorf("failed to write geojson: %w", err)
	}
	if *chart != "" {
		if err := writeRendering(*chart, func(w io.Writer) error {
			return report.SpeedChart(w, run, a.worker.Processor())
		}); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
	}
	if *plot != "" {
		if err := writeRendering(*plot, func(w io.Writer) error {
			return report.SpeedPlotPNG(w, run, a.worker.Processor())
		}); err != nil {
			return fmt.Errorf("failed to write plot: %w", err)
		}
	}

	if *upload {
		if *out == "" || *out == "-" {
			return errors.New("-upload needs -o to name a file")
		}
		meta := core.UploadMetadata{
			SubjectID:     run.SubjectID,
			Day:           run.Day,
			PointCount:    run.Summary.PointCount,
			AnySuspicious: run.Summary.AnySuspicious,
		}
		if err := a.api.Upload(ctx, *out, meta); err != nil {
			return err
		}
		a.logger.Info("Uploaded export", "file", *out)
	}
	return nil
}

func writeRendering(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return render(f)
}
