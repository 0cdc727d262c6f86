// Package logging builds the slog chain of a trackcheck process and the
// zerolog loggers of its database, influx and dispatcher components.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ScopeName is the instrumentation scope used for the OTel log bridge.
const ScopeName = "trackcheck"

var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager owns the process logger. Its level can be changed at runtime
// without rebuilding the handler chain.
type SlogManager struct {
	logger      *slog.Logger
	level       slog.LevelVar
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a manager that logs through slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Option adjusts the handler chain built by Setup.
type Option func(*setupOptions)

type setupOptions struct {
	graylog  io.Writer
	provider ContextProvider
}

// WithGraylog adds a JSON handler writing to w, typically a GELF writer.
func WithGraylog(w io.Writer) Option {
	return func(o *setupOptions) { o.graylog = w }
}

// WithContext injects the attributes returned by p into every record.
func WithContext(p ContextProvider) Option {
	return func(o *setupOptions) { o.provider = p }
}

// ParseLevel maps a config or command level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func parseLevel(level string) slog.Level {
	lvl, _ := ParseLevel(level)
	return lvl
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup builds the chain: text records to file (stdout when file is nil),
// JSON to the Graylog writer and the OTel bridge when provider is set.
// The file and Graylog sinks follow the manager's level.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	m.level.Set(parseLevel(level))
	m.logProvider = provider

	hopts := &slog.HandlerOptions{Level: &m.level, ReplaceAttr: utcTime}
	if file == nil {
		file = osStdout
	}
	sinks := []slog.Handler{slog.NewTextHandler(file, hopts)}
	if o.graylog != nil {
		sinks = append(sinks, slog.NewJSONHandler(o.graylog, hopts))
	}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(sinks...), o.provider))
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the level of every sink built by Setup.
func (m *SlogManager) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	m.level.Set(lvl)
	return nil
}

// Level returns the current minimum level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog logs data for a named component at the given level.
func (m *SlogManager) WriteLog(component, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "component", component)
}
