package main

import (
	"context"
	"errors"

	"secureflow/internal/cli"
	"secureflow/internal/log"
	"secureflow/internal/services"
	"secureflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger("info", log.ComponentWorker), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting secureflow-worker", "inbox", cfg.InboxDir, "schedule", cfg.InboxSchedule)

	app, err := cli.Bootstrap(cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize application", err)
	}
	defer app.Close()

	inbox := services.NewInboxProcessor(cfg.InboxDir, app.Imports, logger)
	w, err := worker.NewInboxWorker(cfg.InboxSchedule, inbox, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to schedule inbox worker", err)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	w.Start(ctx)

	consumed := make(chan struct{})
	if app.AMQP != nil {
		go func() {
			defer close(consumed)
			err := app.AMQP.ConsumeImportEvents(ctx, worker.LogImportEvent(logger))
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Import event consumption failed", log.FieldError, err)
			}
		}()
	} else {
		close(consumed)
		logger.Info("Skipping import event consumption - AMQP disabled")
	}

	<-ctx.Done()
	w.Stop()
	<-consumed
	logger.Info("Worker stopped gracefully")
}
