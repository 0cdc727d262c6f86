package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	// BucketTrackAnomalies receives one point per processed run.
	BucketTrackAnomalies = "track_anomalies"
	// BucketServicePerformance receives the monitor snapshots.
	BucketServicePerformance = "service_performance"
	// BucketDeviceMetrics receives free-form metrics reported by devices.
	BucketDeviceMetrics = "device_metrics"
)

// DefaultBucketNames are the buckets ensured on connect.
var DefaultBucketNames = []string{
	BucketTrackAnomalies,
	BucketServicePerformance,
	BucketDeviceMetrics,
}

// Manager handles InfluxDB connections and writes. When the server is
// unreachable, points are appended as gzipped line protocol to BackupPath.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	buckets := DefaultBucketNames
	if b := viper.GetString("influx.bucket"); b != "" && b != BucketTrackAnomalies {
		buckets = append([]string{b}, DefaultBucketNames[1:]...)
	}
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: buckets,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// RunBucket is the bucket run points are written to.
func (m *Manager) RunBucket() string {
	return m.BucketNames[0]
}

// Connect establishes a connection to InfluxDB, falling back to the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.OpenBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

// OpenBackup opens the gzip line-protocol backup file if it is not open yet.
func (m *Manager) OpenBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := viper.GetString("influx.org")

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// 90 day retention
	for _, bucket := range m.BucketNames {
		if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, m.Writers[bucket].Errors())
	}

	m.Logger.Debug().Int("buckets", len(m.BucketNames)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteRun records the outcome of one processed run.
func (m *Manager) WriteRun(ctx context.Context, run core.TrackRun) error {
	return m.WritePoint(ctx, m.RunBucket(), RunPoint(run))
}

// Close flushes writers and the backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return nil
	}
	if err := m.BackupWriter.Close(); err != nil {
		return fmt.Errorf("error closing backup writer: %w", err)
	}
	m.BackupWriter = nil
	return m.backupFile.Close()
}

// RunPoint builds the track_run measurement for a processed run.
func RunPoint(run core.TrackRun) *influxdb2_write.Point {
	s := run.Summary
	return influxdb2.NewPoint(
		"track_run",
		map[string]string{
			"subject_id":     strconv.FormatUint(uint64(run.SubjectID), 10),
			"day":            run.Day,
			"any_suspicious": strconv.FormatBool(s.AnySuspicious),
		},
		map[string]interface{}{
			"points":           s.PointCount,
			"suspicious":       s.SuspiciousCount,
			"jittered":         s.JitteredCount,
			"distance_m":       s.DistanceMeters,
			"duration_s":       s.Duration.Seconds(),
			"avg_speed_kmh":    s.AverageSpeedKmh,
			"speed_is_unusual": s.SpeedIsUnusual,
			"run_id":           run.ID,
		},
		run.ProcessedAt,
	)
}

// PerformancePoint builds the service_status measurement from a monitor snapshot.
func PerformancePoint(p model.ServicePerformance) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"service_status",
		nil,
		map[string]interface{}{
			"queue_subjects":      p.WriteQueueLengths.Subjects,
			"queue_gps_points":    p.WriteQueueLengths.GPSPoints,
			"queue_track_runs":    p.WriteQueueLengths.TrackRuns,
			"runs_processed":      p.RunsProcessed,
			"last_write_duration": p.LastWriteDurationMs,
		},
		p.Time,
	)
}

// ProcessMetricData parses a device metric command into a bucket and point.
//
// Arguments: 0 = bucket name, 1 = measurement name, then any number of
// "tag::name::value" and "field::type::name::value" entries where type is
// string, int or float. An empty bucket selects device_metrics.
func ProcessMetricData(data []string) (
	bucket string,
	point *influxdb2_write.Point,
	err error,
) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric needs at least bucket and measurement, got %d args", len(data))
	}

	for i, v := range data {
		data[i] = util.CleanArg(v)
	}

	bucket = data[0]
	if bucket == "" {
		bucket = BucketDeviceMetrics
	}
	point = influxdb2_write.NewPointWithMeasurement(data[1]).SetTime(time.Now())

	for _, entry := range data[2:] {
		parts := strings.Split(entry, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			fieldType, fieldName, fieldValue := parts[1], parts[2], parts[3]
			switch fieldType {
			case "string":
				point.AddField(fieldName, fieldValue)
			case "int":
				intVal, err := strconv.Atoi(fieldValue)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", fieldValue, err)
				}
				point.AddField(fieldName, intVal)
			case "float":
				floatVal, err := strconv.ParseFloat(fieldValue, 64)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", fieldValue, err)
				}
				point.AddField(fieldName, floatVal)
			}
		}
	}

	return bucket, point, nil
}
