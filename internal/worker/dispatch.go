package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldtrack/trackcheck/internal/dispatcher"
	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/internal/influx"
	"github.com/fieldtrack/trackcheck/internal/util"
)

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Subject registration - sync (consent must be known before fixes arrive)
	d.Register(":SUBJECT:", m.handleSubject, dispatcher.MinArgs(2), dispatcher.Logged())

	// High-volume fixes - buffered, one worker per subject shard keeps capture order
	d.Register(":POINT:", m.handlePoint,
		dispatcher.MinArgs(3),
		dispatcher.Buffered(pointBuffer),
		dispatcher.Sharded(pointWorkers, subjectKey),
		dispatcher.Logged())

	// Processing returns the run to the caller - sync
	d.Register(":PROCESS:", m.handleProcess, dispatcher.MinArgs(2), dispatcher.Logged())

	// Device metrics - buffered, dropped without influx
	d.Register(":METRIC:", m.handleMetric, dispatcher.Buffered(1000), dispatcher.Logged())

	// Operator level switch
	d.Register(":LOGLEVEL:", m.handleLogLevel, dispatcher.MinArgs(1))
}

const (
	pointBuffer  = 2500
	pointWorkers = 4
)

// subjectKey shards fixes by the subject id as handlePoint parses it.
func subjectKey(e dispatcher.Event) string {
	if len(e.Args) == 0 {
		return ""
	}
	return util.CleanArg(e.Args[0])
}

// handleSubject args: id, name, trackingEnabled (optional, default true)
func (m *Manager) handleSubject(e dispatcher.Event) (any, error) {
	id, err := util.ParseUint(util.CleanArg(e.Args[0]))
	if err != nil {
		return nil, invalid(err)
	}
	in := SubjectInput{ID: id, Name: util.CleanArg(e.Args[1])}
	if len(e.Args) > 2 {
		enabled, err := strconv.ParseBool(util.CleanArg(e.Args[2]))
		if err != nil {
			return nil, invalid(err)
		}
		in.TrackingEnabled = &enabled
	}

	s, err := m.AddSubject(context.Background(), in)
	if err != nil {
		return nil, fmt.Errorf("failed to log new subject: %w", err)
	}
	return s, nil
}

// handlePoint args: subjectID, timestamp, "lat,lng", trackingType (optional), attendanceID (optional)
func (m *Manager) handlePoint(e dispatcher.Event) (any, error) {
	subjectID, err := util.ParseUint(util.CleanArg(e.Args[0]))
	if err != nil {
		return nil, invalid(err)
	}
	ts, err := util.ParseTimestamp(util.CleanArg(e.Args[1]))
	if err != nil {
		return nil, invalid(err)
	}
	pos, err := geo.LatLngFromString(util.CleanArg(e.Args[2]))
	if err != nil {
		return nil, invalid(err)
	}

	in := PointInput{
		SubjectID: subjectID,
		Time:      ts,
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
	}
	if len(e.Args) > 3 {
		in.Type = strings.ToLower(util.CleanArg(e.Args[3]))
	}
	if len(e.Args) > 4 && util.CleanArg(e.Args[4]) != "" {
		attendanceID, err := util.ParseUint(util.CleanArg(e.Args[4]))
		if err != nil {
			return nil, invalid(err)
		}
		in.AttendanceID = &attendanceID
	}

	if err := m.RecordPoint(context.Background(), in); err != nil {
		return nil, fmt.Errorf("failed to log point: %w", err)
	}
	return nil, nil
}

// handleProcess args: subjectID, day (YYYY-MM-DD)
func (m *Manager) handleProcess(e dispatcher.Event) (any, error) {
	subjectID, err := util.ParseUint(util.CleanArg(e.Args[0]))
	if err != nil {
		return nil, invalid(err)
	}

	source := e.Source
	if source == "" {
		source = "command"
	}
	run, err := m.ProcessDay(context.Background(), subjectID, util.CleanArg(e.Args[1]), source)
	if err != nil {
		return nil, fmt.Errorf("failed to process track: %w", err)
	}
	return run, nil
}

// handleMetric args: bucket, measurement, then tag/field entries
func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if m.deps.Influx == nil {
		return nil, nil
	}

	bucket, point, err := influx.ProcessMetricData(e.Args)
	if err != nil {
		return nil, invalid(err)
	}
	if err := m.deps.Influx.WritePoint(context.Background(), bucket, point); err != nil {
		return nil, fmt.Errorf("failed to write metric: %w", err)
	}
	return nil, nil
}

// handleLogLevel args: level (debug, info, warn, error)
func (m *Manager) handleLogLevel(e dispatcher.Event) (any, error) {
	if err := m.deps.LogManager.SetLevel(util.CleanArg(e.Args[0])); err != nil {
		return nil, invalid(err)
	}
	level := m.deps.LogManager.Level().String()
	m.deps.LogManager.Logger().Info("Log level changed", "level", level, "source", e.Source)
	return level, nil
}
