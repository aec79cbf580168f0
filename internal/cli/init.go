// Package cli provides the initialization shared by cmd/secureflow,
// cmd/secureflow-import and cmd/secureflow-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"secureflow/internal/amqp"
	"secureflow/internal/config"
	"secureflow/internal/ingest"
	"secureflow/internal/log"
	"secureflow/internal/services"
	"secureflow/internal/storage"
)

// SetupLogger builds the process logger at levelName and installs it as
// the slog default.
func SetupLogger(levelName, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(levelName),
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App holds the collaborators every binary builds from the same config.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Repo     *storage.SQLiteRepository
	AMQP     *amqp.Client // nil when AMQP is disabled or unreachable
	Imports  *services.ImportService
	Records  *services.RecordService
}

// Bootstrap opens the store and, when configured, the AMQP publisher. A
// broker that cannot be reached is logged and skipped: imports never
// depend on it.
func Bootstrap(cfg *config.Config, logger *log.Logger) (*App, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.SQLiteDBPath, err)
	}

	app := &App{Config: cfg, Logger: logger, Repo: repo}

	var publisher services.ImportPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, import events disabled", log.FieldError, err)
		} else {
			app.AMQP = client
			publisher = client
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	ingestor := ingest.NewIngestor(repo, ingest.WithLogger(logger))
	app.Imports = services.NewImportService(ingestor, publisher, logger)
	app.Records = services.NewRecordService(repo, logger)
	return app, nil
}

// Close releases the broker connection and the database.
func (a *App) Close() {
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			a.Logger.Warn("AMQP close failed", log.FieldError, err)
		}
	}
	if err := a.Repo.Close(); err != nil {
		a.Logger.Warn("Database close failed", log.FieldError, err)
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// received signal is logged.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
