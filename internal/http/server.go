// Package http exposes the import, listing, edit and export operations as
// a JSON API for the dashboard UI.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"secureflow/internal/cache"
	"secureflow/internal/core"
	"secureflow/internal/log"
	"secureflow/internal/middleware/ratelimit"
	"secureflow/internal/middleware/security"
	"secureflow/internal/middleware/trace"
	"secureflow/internal/services"
)

const (
	defaultMaxUpload = 20 << 20
	maxJSONBody      = 1 << 20
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API is built on. Ready may be nil.
type Deps struct {
	Imports *services.ImportService
	Records *services.RecordService
	Exports *services.ExportService
	Ready   Pinger
	Logger  *log.Logger

	MaxUploadBytes int64
	CORSOrigin     string
	// TrustedProxies are CIDRs whose forwarded headers are believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	imports *services.ImportService
	records *services.RecordService
	exports *services.ExportService
	ready   Pinger
	logger  *log.Logger

	maxUpload  int64
	corsOrigin string

	detector    *security.Detector
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter

	dashboardCache *cache.LRUCache[services.Dashboard]
	periodsCache   *cache.LRUCache[[]string]
	caches         *cache.Manager

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		imports:        deps.Imports,
		records:        deps.Records,
		exports:        deps.Exports,
		ready:          deps.Ready,
		logger:         logger.WithComponent(log.ComponentHTTP),
		maxUpload:      deps.MaxUploadBytes,
		corsOrigin:     deps.CORSOrigin,
		detector:       security.NewDetector(),
		rateLimiter:    ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		dashboardCache: cache.NewLRUCache[services.Dashboard](4, time.Minute),
		periodsCache:   cache.NewLRUCache[[]string](len(core.Kinds()), 10*time.Minute),
		caches:         cache.NewManager(logger),
		started:        time.Now(),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.rateLimiter.Stop()
			return nil, err
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.caches.Register(s.dashboardCache)
	s.caches.Register(s.periodsCache)
	s.caches.StartCleanup(10 * time.Minute)

	invalidate := func(kind core.RecordKind) {
		s.dashboardCache.Clear()
		s.periodsCache.Delete(string(kind))
	}
	s.imports.OnImport(invalidate)
	s.records.OnChange(invalidate)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	for _, kind := range core.Kinds() {
		mux.Handle("GET /api/"+string(kind), s.handleList(kind))
		mux.Handle("GET /api/"+string(kind)+"/periodos", s.handlePeriods(kind))
	}
	mux.HandleFunc("POST /api/import/{kind}", s.handleImport)
	mux.HandleFunc("POST /api/export/{kind}", s.handleExport)

	mux.HandleFunc("PUT /api/renovacoes/{id}", s.handleUpdateRenewal)
	mux.HandleFunc("PUT /api/parcelas/{id}", s.handleUpdateInstallment)
	mux.HandleFunc("PUT /api/novos/{id}", s.handleUpdateNewContract)
	mux.HandleFunc("POST /api/novos", s.handleCreateNewContract)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	// Outermost first.
	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = s.withCORS(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(s.logger, trace.RequestID)(h)
	h = s.detector.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	return h
}

// withCORS lets the separately served UI call the API.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Export-Rows, X-Request-ID")
		if s.corsOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldClientIP, s.detector.ExtractClientIP(r))
	writeError(w, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
}

// Shutdown stops background cleanups and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
