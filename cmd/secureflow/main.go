package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"secureflow/internal/cli"
	apphttp "secureflow/internal/http"
	"secureflow/internal/log"
	"secureflow/internal/services"
	"secureflow/internal/workbook/excel"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger("info", log.ComponentApp), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	app, err := cli.Bootstrap(cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize application", err)
	}
	defer app.Close()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Imports:        app.Imports,
		Records:        app.Records,
		Exports:        services.NewExportService(app.Repo, excel.Writer{}, logger),
		Ready:          app.Repo,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		CORSOrigin:     cfg.CORSOrigin,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to configure HTTP server", err)
	}

	// Large workbooks take a while to upload and ingest, so there is no
	// request timeout beyond the header read.
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting secureflow server", "port", cfg.Port, "amqp", app.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		cli.Fatal(logger, "Server error", err)
	}
	<-stopped
	logger.Info("Server stopped gracefully")
}
