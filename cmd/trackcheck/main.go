package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldtrack/trackcheck/internal/api"
	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/database"
	"github.com/fieldtrack/trackcheck/internal/dispatcher"
	"github.com/fieldtrack/trackcheck/internal/influx"
	"github.com/fieldtrack/trackcheck/internal/logging"
	intOtel "github.com/fieldtrack/trackcheck/internal/otel"
	"github.com/fieldtrack/trackcheck/internal/storage"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/internal/worker"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"

	AppName = "trackcheck"
)

// app holds the services shared by all subcommands
type app struct {
	start time.Time

	logFile    *os.File
	logManager *logging.SlogManager
	logger     *slog.Logger
	otel       *intOtel.Provider
	metrics    *intOtel.TrackMetrics

	influx     *influx.Manager
	dbManager  *database.Manager // set when the postgres backend owns the connection
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	worker     *worker.Manager
	api        *api.Client
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [args]

Commands:
  serve                     run the HTTP API and status monitor
  process <points.json>     annotate a JSON array of points and print the result
  replay  <commands.jsonl>  feed recorded gateway commands through the dispatcher
  export  <subject> <day>   process a stored subject-day and write its GeoJSON

Flags:
`, AppName)
	flag.PrintDefaults()
}

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(args, *configDir, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(args []string, configDir, envFile string) error {
	// a missing .env is normal outside development
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	a := &app{start: time.Now(), logManager: logging.NewSlogManager()}
	a.logManager.Setup(os.Stderr, viper.GetString("logLevel"), nil)
	a.logger = a.logManager.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	cmd, rest := args[0], args[1:]
	if cmd == "process" {
		// stateless, nothing to connect
		return a.runProcess(rest)
	}

	if err := a.setupLogging(); err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.setupServices(); err != nil {
		return err
	}

	switch cmd {
	case "serve":
		return a.runServe()
	case "replay":
		return a.runReplay(rest)
	case "export":
		return a.runExport(rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// setupLogging opens the session log file and rebuilds the slog chain with
// the file, Graylog and OTel handlers.
func (a *app) setupLogging() error {
	var err error
	a.logFile, err = logging.OpenSessionLog(viper.GetString("logsDir"), AppName, a.start)
	if err != nil {
		return err
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    a.logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}
	if a.otel == nil {
		a.otel, _ = intOtel.New(intOtel.Config{})
	}

	var opts []logging.Option
	if viper.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(viper.GetString("graylog.address"), AppName)
		if err != nil {
			a.logger.Warn("Graylog disabled", "error", err)
		} else {
			opts = append(opts, logging.WithGraylog(gw))
		}
	}
	opts = append(opts, logging.WithContext(func() []slog.Attr {
		return []slog.Attr{
			slog.String("version", Version),
			slog.String("storage", config.GetStorageConfig().Type),
		}
	}))

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel.Enabled() {
		otelLogProvider = a.otel.LoggerProvider()
	}
	a.logManager.Setup(a.logFile, viper.GetString("logLevel"), otelLogProvider, opts...)
	a.logger = a.logManager.Logger()
	a.logger.Info("Logging to file", "path", a.logFile.Name(), "version", Version, "build", BuildDate)
	return nil
}

// setupServices connects storage and influx and wires the dispatcher to the worker.
func (a *app) setupServices() error {
	level := viper.GetString("logLevel")

	metrics, err := intOtel.NewTrackMetrics(a.otel.Meter(intOtel.TrackMeterName))
	if err != nil {
		a.logger.Warn("Processor metrics disabled", "error", err)
	}
	a.metrics = metrics

	if viper.GetBool("influx.enabled") {
		backupPath := filepath.Join(viper.GetString("logsDir"), "influx_backup.lp.gz")
		a.influx = influx.NewManager(logging.NewZerolog(a.logFile, level, "influx"), backupPath)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := a.influx.Connect(ctx)
		cancel()
		if err != nil {
			a.logger.Warn("InfluxDB disabled", "error", err)
			a.influx = nil
		}
	}

	if err := a.initStorage(); err != nil {
		return err
	}

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(
		logging.NewZerolog(a.logFile, level, "dispatcher")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	a.worker = worker.NewManager(worker.Dependencies{
		Processor:  track.New(config.GetProcessorConfig()),
		LogManager: a.logManager,
		Influx:     a.influx,
		Metrics:    a.metrics,
	}, a.backend)
	a.worker.RegisterHandlers(a.dispatcher)
	a.logger.Info("Worker handlers registered with dispatcher")

	a.api = api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"),
		api.WithRetries(viper.GetInt("api.uploadRetries"), viper.GetDuration("api.retryBackoff")))
	return nil
}

// shutdown drains the dispatcher before closing storage so buffered fixes are written.
func (a *app) shutdown() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.dbManager != nil && a.dbManager.Fallback {
		if err := a.dbManager.DumpMemoryToDisk(); err != nil {
			a.logger.Error("Failed to dump fallback database", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB manager", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.logManager.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	a.logger.Info("Shutdown complete", "uptime", time.Since(a.start).Round(time.Second))
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
