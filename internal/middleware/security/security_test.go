package security

import (
	"bytes"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"secureflow/internal/log"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
		"Referrer-Policy":         "no-referrer",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("Cross-Origin-Embedder-Policy") != "" {
		t.Error("empty settings should not emit a header")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		agent       string
		want        []Finding
	}{
		{"list filter", http.MethodGet, "/api/parcelas?dia=2024-05-10", "", "Mozilla/5.0", nil},
		{"range filter", http.MethodGet, "/api/renovacoes?de=2024-01&ate=2024-03", "", "", nil},
		{"scripted upload", http.MethodPost, "/api/import/novos", "multipart/form-data; boundary=xyz", "curl/8.5.0", nil},
		{"export", http.MethodPost, "/api/export/ren", "application/json", "", nil},
		{"traversal", http.MethodGet, "/api/../../etc/passwd", "", "", []Finding{FindingTraversal}},
		{"encoded traversal in export", http.MethodPost, "/api/export/..%2f..%2fdb", "application/json", "", []Finding{FindingTraversal, FindingExportKind}},
		{"export kind with digits", http.MethodPost, "/api/export/novos1", "application/json", "", []Finding{FindingExportKind}},
		{"json upload", http.MethodPost, "/api/import/parcelas", "application/json", "", []Finding{FindingUploadType}},
		{"upload without type", http.MethodPost, "/api/import/parcelas", "", "", []Finding{FindingUploadType}},
		{"huge boundary", http.MethodPost, "/api/import/parcelas", "multipart/form-data; boundary=" + strings.Repeat("b", 71), "", []Finding{FindingBoundary}},
		{"sql in filter", http.MethodGet, "/api/novos?mes=2024-01%27%20or%201=1", "", "", []Finding{FindingInjection, FindingQueryValue}},
		{"scanner", http.MethodGet, "/api/novos", "", "sqlmap/1.7", []Finding{FindingScanner}},
		{"trace method", "TRACE", "/api/novos", "", "", []Finding{FindingMethod}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			u, err := url.Parse(tt.target)
			if err != nil {
				t.Fatal(err)
			}
			req.URL = u
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.Header.Set("User-Agent", tt.agent)

			d := NewDetector()
			got := d.Inspect(req)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Inspect(%s %s) = %v, want %v", tt.method, tt.target, got, tt.want)
			}
			if wantCount := int64(min(len(tt.want), 1)); d.GetMetrics().SuspiciousRequests != wantCount {
				t.Errorf("suspicious count = %d", d.GetMetrics().SuspiciousRequests)
			}
		})
	}
}

func TestInspectLongURLAndProxyChain(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/novos?x="+strings.Repeat("a", 2100), nil)
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6, 7.7.7.7")
	got := NewDetector().Inspect(req)
	if !slices.Equal(got, []Finding{FindingLongURL, FindingProxyChain}) {
		t.Errorf("Inspect = %v", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:4000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy xff", "10.0.0.2:4000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:4000", "", "198.51.100.9", "198.51.100.9"},
		{"garbage xff", "10.0.0.2:4000", "nope", "", "10.0.0.2"},
		{"prepended entry ignored", "10.0.0.2:4000", "6.6.6.6, 198.51.100.1", "", "198.51.100.1"},
		{"trusted hops skipped", "10.0.0.2:4000", "198.51.100.1, 192.168.1.5, 10.0.0.3", "", "198.51.100.1"},
		{"garbage xff falls back to real ip", "10.0.0.2:4000", "nope", "198.51.100.9", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := NewDetector().ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Fatal("expected error")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(req); got != "198.51.100.1" {
		t.Errorf("ExtractClientIP = %q", got)
	}
}

func TestDetectorMiddlewareLogsButServes(t *testing.T) {
	var buf bytes.Buffer
	d := NewDetector()
	h := d.Middleware(log.New(log.Config{Output: &buf}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/import/novos", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "Suspicious request") || !strings.Contains(buf.String(), "findings=upload_content_type") {
		t.Errorf("missing log line: %s", buf.String())
	}
	if d.GetMetrics().SuspiciousRequests != 1 {
		t.Errorf("metrics = %+v", d.GetMetrics())
	}
}
