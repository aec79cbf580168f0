// Package worker runs the background jobs of the import worker binary.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"secureflow/internal/amqp"
	"secureflow/internal/log"
	"secureflow/internal/services"
)

// InboxScanner is the job run on every tick. *services.InboxProcessor
// satisfies it.
type InboxScanner interface {
	Process(ctx context.Context) (services.InboxReport, error)
}

// InboxWorker scans the inbox on a cron schedule. Overlapping ticks are
// skipped rather than queued.
type InboxWorker struct {
	cron    *cron.Cron
	scanner InboxScanner
	logger  *log.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewInboxWorker(schedule string, scanner InboxScanner, logger *log.Logger) (*InboxWorker, error) {
	if logger == nil {
		logger = log.Discard()
	}
	w := &InboxWorker{
		scanner: scanner,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs one scan immediately and then follows the schedule until ctx
// is done or Stop is called.
func (w *InboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.tick()
	w.cron.Start()
	w.logger.InfoContext(ctx, "Inbox worker started", "entries", len(w.cron.Entries()))
}

// Stop halts the schedule and waits for a running scan to finish.
func (w *InboxWorker) Stop() {
	done := w.cron.Stop()
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	<-done.Done()
	w.logger.Info("Inbox worker stopped")
}

func (w *InboxWorker) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	rep, err := w.scanner.Process(ctx)
	if err != nil {
		log.NewStructuredLogger(w.logger).LogError(ctx, "Inbox scan failed", err, log.ComponentWorker, log.OpScan, nil)
		return
	}
	if rep.Imported+rep.Failed > 0 {
		w.logger.InfoContext(ctx, "Inbox scan finished",
			"imported", rep.Imported,
			"failed", rep.Failed,
			log.FieldInserted, rep.Rows)
	}
}

// LogImportEvent is an amqp consumer handler that records committed
// imports announced by other processes.
func LogImportEvent(logger *log.Logger) func(context.Context, *amqp.ImportCompletedMessage) error {
	l := logger.WithComponent(log.ComponentAMQP)
	return func(ctx context.Context, msg *amqp.ImportCompletedMessage) error {
		log.NewStructuredLogger(l).LogImportCompleted(ctx, msg.Kind, msg.BatchID, msg.Sheets, msg.Inserted)
		return nil
	}
}
