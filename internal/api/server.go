// Package api exposes the HTTP surface: satellite catalog management,
// ground-track and event queries, frame retrieval, and time control.
package api

import (
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/orbview/orbview/internal/auth"
	"github.com/orbview/orbview/internal/catalog"
	"github.com/orbview/orbview/internal/events"
	"github.com/orbview/orbview/internal/frame"
	"github.com/orbview/orbview/internal/health"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/propagation"
	"github.com/orbview/orbview/internal/stream"
	"github.com/orbview/orbview/internal/timestate"
	"github.com/orbview/orbview/internal/track"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	catalog  *catalog.Catalog
	model    *timestate.Model
	builder  *frame.Builder
	cache    *frame.Cache
	sampler  *track.Sampler
	detector *events.Detector
	pool     *propagation.Pool
}

// Deps bundles the server's collaborators.
type Deps struct {
	Catalog *catalog.Catalog
	Model   *timestate.Model
	Builder *frame.Builder
	Cache   *frame.Cache
	Stream  *stream.Handler
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, deps Deps, authCfg auth.Config, logger *slog.Logger) *Server {
	s := &Server{
		logger:   logger,
		catalog:  deps.Catalog,
		model:    deps.Model,
		builder:  deps.Builder,
		cache:    deps.Cache,
		sampler:  track.NewSampler(logger),
		detector: events.NewDetector(logger),
		pool:     propagation.NewPool(runtime.NumCPU(), logger),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/satellites", s.handleListSatellites)
	mux.HandleFunc("POST /api/v1/satellites", s.handleUpsertSatellite)
	mux.HandleFunc("GET /api/v1/satellites/{id}", s.handleGetSatellite)
	mux.HandleFunc("DELETE /api/v1/satellites/{id}", s.handleDeleteSatellite)

	mux.HandleFunc("GET /api/v1/positions", s.handlePositions)
	mux.HandleFunc("GET /api/v1/track/{id}", s.handleTrack)
	mux.HandleFunc("GET /api/v1/events", s.handleAllEvents)
	mux.HandleFunc("GET /api/v1/events/{id}", s.handleEvents)

	mux.HandleFunc("GET /api/v1/frame", s.handleFrame)
	mux.HandleFunc("GET /api/v1/frame/stats", s.handleFrameStats)

	mux.HandleFunc("GET /api/v1/time", s.handleGetTime)
	mux.HandleFunc("POST /api/v1/time/pending", s.handleTimePending)
	mux.HandleFunc("POST /api/v1/time/apply", s.handleTimeApply)
	mux.HandleFunc("POST /api/v1/time/cancel", s.handleTimeCancel)
	mux.HandleFunc("POST /api/v1/time/step", s.handleTimeStep)
	mux.HandleFunc("POST /api/v1/time/slider", s.handleTimeSlider)
	mux.HandleFunc("POST /api/v1/time/resume", s.handleTimeResume)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
	}

	// Middleware chain: metrics -> tracing -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = tracingMiddleware(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// ready reports whether the service can serve frames: an empty catalog is
// trivially ready, otherwise the cache must hold at least one entry.
func (s *Server) ready() bool {
	if s.catalog.Len() == 0 {
		return true
	}
	return s.cache == nil || s.cache.Stats().Entries > 0
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// SSE handler needs for deadline control.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Flush forwards to the wrapped writer so the SSE handler's Flusher
// assertion still holds behind the logging middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
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
