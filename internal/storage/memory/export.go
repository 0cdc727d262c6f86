// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"
)

// RunExport is the root JSON document handed to the rendering frontend
type RunExport struct {
	RunID       string            `json:"runId"`
	SubjectID   uint              `json:"subjectId"`
	SubjectName string            `json:"subjectName,omitempty"`
	Day         string            `json:"day"`
	ProcessedAt string            `json:"processedAt"`
	Summary     core.Summary      `json:"summary"`
	Points      []core.TrackPoint `json:"points"`
	Markers     []track.Marker    `json:"markers"`
}

// buildExport assembles the document for one run. Caller holds the lock.
func (b *Backend) buildExport(run core.TrackRun) RunExport {
	export := RunExport{
		RunID:       run.ID,
		SubjectID:   run.SubjectID,
		Day:         run.Day,
		ProcessedAt: run.ProcessedAt.UTC().Format(time.RFC3339),
		Summary:     run.Summary,
		Points:      run.Points,
		Markers:     track.Classify(run.Points),
	}
	if export.Points == nil {
		export.Points = []core.TrackPoint{}
	}
	if rec, ok := b.subjects[run.SubjectID]; ok {
		export.SubjectName = rec.Subject.Name
	}
	return export
}

// exportFilename is <subject>_<day>_<run>.json[.gz]
func (b *Backend) exportFilename(export RunExport) string {
	name := util.SanitizeFilename(fmt.Sprintf("%d_%s_%s", export.SubjectID, export.Day, export.RunID))
	if b.cfg.CompressOutput {
		return name + ".json.gz"
	}
	return name + ".json"
}

// exportJSON writes the run to the output directory. Caller holds the lock.
func (b *Backend) exportJSON(run core.TrackRun) error {
	export := b.buildExport(run)
	outputPath := filepath.Join(b.cfg.OutputDir, b.exportFilename(export))

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMetadata = core.UploadMetadata{
		SubjectID:     run.SubjectID,
		Day:           run.Day,
		PointCount:    run.Summary.PointCount,
		AnySuspicious: run.Summary.AnySuspicious,
	}
	return nil
}

// GetExportedFilePath returns the path of the last exported run file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported run file
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMetadata
}

func writeJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode run: %w", err)
	}
	return gzWriter.Close()
}
