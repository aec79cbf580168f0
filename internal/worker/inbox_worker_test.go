package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"secureflow/internal/amqp"
	"secureflow/internal/log"
	"secureflow/internal/services"
)

type countingScanner struct {
	calls atomic.Int32
	err   error
}

func (s *countingScanner) Process(context.Context) (services.InboxReport, error) {
	s.calls.Add(1)
	return services.InboxReport{Imported: 1, Rows: 4}, s.err
}

func TestNewInboxWorkerRejectsBadSchedule(t *testing.T) {
	if _, err := NewInboxWorker("sometimes", &countingScanner{}, nil); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestInboxWorkerScansOnStartAndOnSchedule(t *testing.T) {
	scanner := &countingScanner{}
	w, err := NewInboxWorker("@every 1s", scanner, nil)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(context.Background())
	if scanner.calls.Load() != 1 {
		t.Fatalf("start should scan once, got %d", scanner.calls.Load())
	}

	deadline := time.Now().Add(3 * time.Second)
	for scanner.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	w.Stop()

	if scanner.calls.Load() < 2 {
		t.Errorf("scheduled scan did not run")
	}
}

func TestInboxWorkerSkipsAfterCancel(t *testing.T) {
	scanner := &countingScanner{err: errors.New("boom")}
	w, err := NewInboxWorker("@every 1h", scanner, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	w.tick()
	w.Stop()

	if scanner.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", scanner.calls.Load())
	}
}

func TestLogImportEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})

	err := LogImportEvent(logger)(context.Background(), &amqp.ImportCompletedMessage{
		BatchID: "b-1", Kind: "parcelas", Sheets: 1, Inserted: 12,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"batch_id=b-1", "kind=parcelas", "inserted=12"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
