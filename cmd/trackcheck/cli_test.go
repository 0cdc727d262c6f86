package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		wantErr bool
		command string
		args    int
	}{
		{"blank", "   ", false, false, "", 0},
		{"comment", "# exported 2024-03-14", false, false, "", 0},
		{"empty array", "[]", false, false, "", 0},
		{"point", `[":POINT:", "1", "1710406860", "12.97,77.59"]`, true, false, ":POINT:", 3},
		{"no args", `[":PROCESS:"]`, true, false, ":PROCESS:", 0},
		{"not json", `:POINT: 1 2 3`, false, true, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.command, e.Command)
			assert.Len(t, e.Args, tt.args)
		})
	}
}

func TestReadPoints(t *testing.T) {
	in := `[
		{"latitude": 12.97, "longitude": 77.59, "timestamp": "2024-03-14T09:00:00Z", "suspicious": true},
		{"latitude": 12.98, "longitude": 77.60, "kind": "call_start", "sequenceIndex": 9}
	]`
	points, err := readPoints(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 0, points[0].SequenceIndex)
	assert.Equal(t, 1, points[1].SequenceIndex, "index follows array order")
	assert.False(t, points[0].Suspicious, "annotations in the input are dropped")
	assert.Equal(t, 12.97, points[0].DisplayLatitude)
	require.NotNil(t, points[0].Timestamp)
	assert.Nil(t, points[1].Timestamp)
	require.NotNil(t, points[1].Kind)
	assert.EqualValues(t, "call_start", *points[1].Kind)

	_, err = readPoints(strings.NewReader(`{"latitude": 1}`))
	assert.Error(t, err)

	route, err := readPoints(strings.NewReader(`[[77.5946, 12.9716], [77.6, 12.98]]`))
	require.NoError(t, err)
	require.Len(t, route, 2)
	assert.Equal(t, 12.9716, route[0].Latitude, "pairs are lng,lat")
	assert.Equal(t, 77.6, route[1].DisplayLongitude)
	assert.Nil(t, route[1].Timestamp)
}

func TestRunProcess(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "points.json")
	out := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(in, []byte(`[
		{"latitude": 12.9716, "longitude": 77.5946, "timestamp": "2024-03-14T09:00:00Z"},
		{"latitude": 13.0827, "longitude": 80.2707, "timestamp": "2024-03-14T09:01:00Z"}
	]`), 0644))

	a := &app{logManager: logging.NewSlogManager()}
	a.logger = a.logManager.Logger()

	require.NoError(t, a.runProcess([]string{"-o", out, in}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var res track.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, 2, res.Summary.SuspiciousCount)
	assert.Len(t, res.Markers, 2)

	assert.Error(t, a.runProcess(nil), "points file is required")
	assert.Error(t, a.runProcess([]string{filepath.Join(dir, "missing.json")}))
}
