package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skypass/internal/auth"
	"github.com/star/skypass/internal/health"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/observability"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/refraction"
	"github.com/star/skypass/internal/schedule"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/tle"
)

// Deps are the services the API serves from. Fetcher, Cache, Schedule and
// Stream are optional; the routes that need them answer 403 or 503
// without them.
type Deps struct {
	Store      *tle.Store
	Propagator *propagation.Propagator
	Fetcher    *tle.Fetcher
	Cache      *tle.Cache
	Schedule   *schedule.Schedule
	Stream     *stream.Handler
	Search     passes.SearchConfig
	Refraction refraction.Conditions
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Streams extend their own deadline per write.
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with its middleware chain:
// tracing -> metrics -> logging -> auth -> mux.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	h := newHandlers(logger, deps)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() error {
		if deps.Store.Get() == nil {
			return errors.New("no TLE dataset loaded")
		}
		return nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/tle/metadata", h.metadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", h.fetch)
	mux.HandleFunc("GET /api/v1/elements/{norad_id}", h.elements)
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", h.propagate)
	mux.HandleFunc("GET /api/v1/observe/{norad_id}", h.observe)
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", h.passes)
	mux.HandleFunc("GET /api/v1/schedule/{station}", h.schedule)
	mux.HandleFunc("GET /api/v1/catalog/snapshot", h.snapshot)
	mux.HandleFunc("GET /api/v1/catalog/keyframes", h.keyframes)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/track/{norad_id}", deps.Stream.HandleTrack)
	}

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	handler = observability.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "component", "api", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// quietPath reports whether path is a health or readiness check that should not log at INFO.
func quietPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			switch {
			case quietPath(r.URL.Path):
				level = slog.LevelDebug
			case sr.statusCode >= 500:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
