// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func fix(subject uint, t time.Time, lat, lng float64) *core.Fix {
	return &core.Fix{SubjectID: subject, Time: t, Latitude: lat, Longitude: lng, Type: core.TrackingRoutePoint}
}

func TestAddAndGetSubject(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 7, Name: "Asha", TrackingEnabled: true}))

	s, err := b.GetSubject(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Asha", s.Name)
	assert.True(t, s.TrackingEnabled)

	_, err = b.GetSubject(ctx, 8)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddSubject_UpdateKeepsFixes(t *testing.T) {
	b := New(config.MemoryConfig{})
	day := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 1, TrackingEnabled: true}))
	require.NoError(t, b.RecordPoint(ctx, fix(1, day, 12.9, 77.6)))
	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 1, TrackingEnabled: false}))

	s, err := b.GetSubject(ctx, 1)
	require.NoError(t, err)
	assert.False(t, s.TrackingEnabled)

	pts, err := b.PointsForDay(ctx, 1, "2024-03-14")
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestRecordPoint_UnknownSubject(t *testing.T) {
	b := New(config.MemoryConfig{})
	err := b.RecordPoint(ctx, fix(99, time.Now(), 0, 0))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPointsForDay_FiltersAndOrders(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 1, TrackingEnabled: true}))

	base := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(10*time.Hour), 3, 3)))
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(8*time.Hour), 1, 1)))
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(9*time.Hour), 2, 2)))
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(-time.Second), 0, 0)))   // previous day
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(24*time.Hour), 9, 9)))   // next day
	require.NoError(t, b.RecordPoint(ctx, fix(1, base.Add(24*time.Hour-1), 4, 4))) // last instant

	pts, err := b.PointsForDay(ctx, 1, "2024-03-14")
	require.NoError(t, err)
	require.Len(t, pts, 4)
	for i, p := range pts {
		assert.Equal(t, i, p.SequenceIndex)
		assert.Equal(t, float64(i+1), p.Latitude)
		require.NotNil(t, p.Timestamp)
		assert.False(t, p.Suspicious)
	}
}

func TestPointsForDay_Errors(t *testing.T) {
	b := New(config.MemoryConfig{})
	_, err := b.PointsForDay(ctx, 1, "2024-03-14")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 1}))
	_, err = b.PointsForDay(ctx, 1, "14/03/2024")
	assert.Error(t, err)

	pts, err := b.PointsForDay(ctx, 1, "2024-03-14")
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestSaveRun_LatestAndGet(t *testing.T) {
	b := New(config.MemoryConfig{})
	t0 := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)

	first := &core.TrackRun{ID: "a", SubjectID: 1, Day: "2024-03-14", ProcessedAt: t0}
	second := &core.TrackRun{ID: "b", SubjectID: 1, Day: "2024-03-14", ProcessedAt: t0.Add(time.Hour)}
	require.NoError(t, b.SaveRun(ctx, second))
	require.NoError(t, b.SaveRun(ctx, first))

	latest, err := b.LatestRun(ctx, 1, "2024-03-14")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	got, err := b.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, t0, got.ProcessedAt)

	_, err = b.GetRun(ctx, "zzz")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.LatestRun(ctx, 1, "2024-03-15")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSaveRun_StoresCopy(t *testing.T) {
	b := New(config.MemoryConfig{})
	run := &core.TrackRun{
		ID:     "a",
		Day:    "2024-03-14",
		Points: []core.TrackPoint{core.NewTrackPoint(0, 1, 2, nil, nil)},
	}
	require.NoError(t, b.SaveRun(ctx, run))
	run.Points[0].Latitude = 50

	got, err := b.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Points[0].Latitude)
}

func processedRun(t *testing.T) *core.TrackRun {
	t.Helper()
	base := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	var pts []core.TrackPoint
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		pts = append(pts, core.NewTrackPoint(i, 12.9716, 77.5946, &ts, nil))
	}
	res := track.New(track.DefaultConfig()).Run(pts)
	return &core.TrackRun{
		ID:          "run-1",
		SubjectID:   3,
		Day:         "2024-03-14",
		ProcessedAt: base.Add(time.Hour),
		Points:      res.Points,
		Summary:     res.Summary,
	}
}

func TestExport_Gzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.AddSubject(ctx, &core.Subject{ID: 3, Name: "Ravi Kumar"}))

	require.NoError(t, b.SaveRun(ctx, processedRun(t)))

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "3_2024-03-14_run-1.json.gz"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export RunExport
	require.NoError(t, json.NewDecoder(zr).Decode(&export))
	assert.Equal(t, "Ravi Kumar", export.SubjectName)
	assert.Len(t, export.Points, 3)
	require.Len(t, export.Markers, 3)
	assert.Equal(t, track.MarkerStart, export.Markers[0].Class)
	assert.Equal(t, track.MarkerClustered, export.Markers[1].Class)
	assert.Equal(t, "2024-03-14T10:00:00Z", export.ProcessedAt)

	meta := b.GetExportMetadata()
	assert.Equal(t, uint(3), meta.SubjectID)
	assert.Equal(t, "2024-03-14", meta.Day)
	assert.Equal(t, 3, meta.PointCount)
	assert.False(t, meta.AnySuspicious)
}

func TestExport_PlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})

	require.NoError(t, b.SaveRun(ctx, processedRun(t)))

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runId":"run-1"`)
}

func TestExport_NoOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.SaveRun(ctx, processedRun(t)))
	assert.Empty(t, b.GetExportedFilePath())
}
