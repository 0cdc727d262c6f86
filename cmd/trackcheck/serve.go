package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/monitor"
	"github.com/fieldtrack/trackcheck/internal/server"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// runServe starts the status monitor and the HTTP API and blocks until SIGINT/SIGTERM.
func (a *app) runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// postgres and sqlite backends also receive the performance rows
	var db *gorm.DB
	if g, ok := a.backend.(interface{ DB() *gorm.DB }); ok {
		db = g.DB()
	}

	mon := monitor.NewService(monitor.Dependencies{
		LogManager: a.logManager,
		Dispatcher: a.dispatcher,
		Worker:     a.worker,
		Backend:    a.backend,
		DB:         db,
		Influx:     a.influx,
		StatusDir:  viper.GetString("logsDir"),
	})
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	serverCfg := config.GetServerConfig()
	srv := server.New(server.Dependencies{
		Worker:     a.worker,
		Status:     mon,
		Dispatcher: a.dispatcher,
		LogManager: a.logManager,
		AccessLog:  a.logFile,
		Version:    Version,
	}, serverCfg)

	if err := a.api.Healthcheck(ctx); err != nil {
		a.logger.Warn("Rendering frontend unreachable, uploads disabled", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "address", serverCfg.Address)
		errCh <- srv.Listen(serverCfg.Address)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		a.logger.Error("Server forced to shutdown", "error", err)
	}
	return nil
}
