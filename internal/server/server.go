package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/recall/internal/engine"
)

// Pinger is a backend the health endpoint can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server beyond its engine.
type Options struct {
	Version string
	// Ledger serves /api/boosts. Nil disables the route.
	Ledger engine.Ledger
	// Checks are probed by /api/health, keyed by name.
	Checks map[string]Pinger
	Logger *slog.Logger
}

// Server is the recall HTTP API server.
type Server struct {
	engine  *engine.Engine
	ledger  engine.Ledger
	checks  map[string]Pinger
	router  chi.Router
	version string
	started time.Time
	logger  *slog.Logger
}

// New creates a Server over eng.
func New(eng *engine.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  eng,
		ledger:  opts.Ledger,
		checks:  opts.Checks,
		version: opts.Version,
		started: time.Now(),
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/query", s.handleQuery)
		r.Post("/answer", s.handleAnswer)
		r.Post("/records", s.handleIngest)
		r.Post("/lifecycle/run", s.handleLifecycleRun)
		r.Get("/boosts/{id}", s.handleBoost)
	})

	s.router = r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	stores := make(map[string]bool, len(s.checks))
	for name, c := range s.checks {
		ok := c.Ping(ctx) == nil
		stores[name] = ok
		if !ok {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"stores":  stores,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
