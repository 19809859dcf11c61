// Package cli holds the startup steps shared by cmd/finbot and
// cmd/finbot-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"finbot/internal/config"
	applog "finbot/internal/log"
	"finbot/internal/storage"
)

// LoadEnvFile loads a .env file for local development. A missing file is
// not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *applog.Logger {
	logCfg := applog.DefaultConfig()
	if level, err := applog.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = level
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		logCfg.Format = "json"
	}
	logger := applog.New(logCfg)
	applog.SetDefault(logger)
	return logger
}

// OpenStore opens the ledger database and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*storage.SQLRepository, error) {
	repo, err := storage.Open(ctx, cfg.DatabaseURL, storage.WithLocation(cfg.Location()))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.WithComponent(applog.ComponentStorage).Info("Storage ready", "driver", repo.Driver())
	return repo, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// Fatal logs err and exits with status 1.
func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err)
	os.Exit(1)
}
