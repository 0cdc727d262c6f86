package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fieldtrack/trackcheck/internal/influx"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/model"
	"github.com/fieldtrack/trackcheck/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatusFileName is written to StatusDir on every tick.
const StatusFileName = "status.json"

// QueueReporter exposes the dispatcher buffer lengths.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// RunCounter exposes the processed-run count and last DB write duration.
type RunCounter interface {
	RunsProcessed() int
	GetLastDBWriteDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Dispatcher QueueReporter
	Worker     RunCounter
	Backend    storage.Backend
	// optional sinks
	DB        *gorm.DB
	Influx    *influx.Manager
	StatusDir string
	Interval  time.Duration
}

// Status is the snapshot served on the status endpoint
type Status struct {
	Time                time.Time               `json:"time"`
	Monitoring          bool                    `json:"monitoring"`
	DispatchQueues      map[string]int          `json:"dispatchQueues"`
	WriteQueues         model.WriteQueueLengths `json:"writeQueues"`
	RunsProcessed       int                     `json:"runsProcessed"`
	LastWriteDurationMs float32                 `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects the current service status
func (s *Service) GetStatus() Status {
	st := Status{
		Time:           time.Now().UTC(),
		Monitoring:     s.IsRunning(),
		DispatchQueues: map[string]int{},
	}
	if s.deps.Dispatcher != nil {
		st.DispatchQueues = s.deps.Dispatcher.QueueLengths()
	}
	if m, ok := s.deps.Backend.(storage.Monitorable); ok {
		st.WriteQueues = m.QueueLengths()
	}
	if s.deps.Worker != nil {
		st.RunsProcessed = s.deps.Worker.RunsProcessed()
		st.LastWriteDurationMs = float32(s.deps.Worker.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	return st
}

// PerformanceModel converts a status snapshot to its DB row
func PerformanceModel(st Status) model.ServicePerformance {
	queues, err := json.Marshal(st.DispatchQueues)
	if err != nil {
		queues = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return model.ServicePerformance{
		Time:                st.Time,
		WriteQueueLengths:   st.WriteQueues,
		DispatchQueues:      datatypes.JSON(queues),
		RunsProcessed:       st.RunsProcessed,
		LastWriteDurationMs: st.LastWriteDurationMs,
	}
}

// writeStatusFile replaces the status file atomically
func (s *Service) writeStatusFile(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
		return fmt.Errorf("failed to create status dir: %w", err)
	}
	path := filepath.Join(s.deps.StatusDir, StatusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Tick takes one snapshot and writes it to every configured sink
func (s *Service) Tick(ctx context.Context) Status {
	logger := s.deps.LogManager.Logger()
	st := s.GetStatus()

	if s.deps.StatusDir != "" {
		if err := s.writeStatusFile(st); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	perf := PerformanceModel(st)
	if s.deps.DB != nil {
		if err := s.deps.DB.WithContext(ctx).Create(&perf).Error; err != nil {
			logger.Error("Error writing perf model to DB", "error", err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(ctx, influx.BucketServicePerformance, influx.PerformancePoint(perf)); err != nil {
			logger.Error("Error writing perf point to InfluxDB", "error", err)
		}
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(s.done)
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Tick(context.Background())
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
