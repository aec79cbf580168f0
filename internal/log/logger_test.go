package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentIsStamped(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentImport, Output: &buf})

	logger.Debug("debug line", FieldKind, "parcelas")
	child := logger.WithComponent(ComponentExport)
	child.Info("exported")

	if logger.Component() != ComponentImport || child.Component() != ComponentExport {
		t.Fatalf("components = %q, %q", logger.Component(), child.Component())
	}
	out := buf.String()
	for _, want := range []string{"component=import", "kind=parcelas", "component=export"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestMiddlewareStoresRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})

	h := Middleware(logger, func(*http.Request) string { return "req_abc" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/parcelas", nil))

	if !strings.Contains(buf.String(), "request_id=req_abc") {
		t.Errorf("request id not attached:\n%s", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != ComponentApp {
		t.Fatalf("FromContext(empty) = %+v", l)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(New(Config{Output: &buf}))
		r := httptest.NewRequest(http.MethodPost, "/api/import/novos?x=1", nil)
		sl.LogHTTPEnd(context.Background(), r, tt.status, 12, "10.0.0.1")

		out := buf.String()
		if !strings.Contains(out, tt.level) || !strings.Contains(out, "client_ip=10.0.0.1") {
			t.Errorf("status %d: output %s", tt.status, out)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	sl.LogError(context.Background(), "Inbox scan failed", errors.New("disk gone"), ComponentWorker, OpScan, nil)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "component=worker", "operation=scan", `error="disk gone"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().WithRecord("novos", 7).WithOperation(OpUpdate).WithError(nil)
	if f[FieldKind] != "novos" || f[FieldRecordID] != int64(7) || f[FieldOperation] != OpUpdate {
		t.Errorf("fields = %v", f)
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be skipped")
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice len = %d", got)
	}
}
