package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sun/sunwatch/internal/auth"
	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/health"
	"github.com/sun/sunwatch/internal/history"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/sites"
	"github.com/sun/sunwatch/internal/solartrack"
	"github.com/sun/sunwatch/internal/stream"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	calc     ephemeris.Calculator
	store    *sites.Store
	track    *solartrack.TrackCache
	recorder *history.Recorder // nil when history is disabled
}

// NewServer creates a configured HTTP server. recorder and webHandler may be
// nil: history endpoints then return 503 and the root serves 404.
func NewServer(
	addr string,
	logger *slog.Logger,
	authCfg auth.Config,
	calc ephemeris.Calculator,
	store *sites.Store,
	track *solartrack.TrackCache,
	streamHandler *stream.Handler,
	recorder *history.Recorder,
	webHandler http.Handler,
) *Server {
	s := &Server{
		logger:   logger,
		calc:     calc,
		store:    store,
		track:    track,
		recorder: recorder,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return store.Get() != nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/position", s.handlePosition)
	mux.HandleFunc("GET /api/v1/sites", s.handleSites)
	mux.HandleFunc("GET /api/v1/sites/{slug}/events", s.handleSiteEvents)
	mux.HandleFunc("GET /api/v1/sites/{slug}/history", s.handleSiteHistory)
	mux.HandleFunc("GET /api/v1/track/stats", s.handleTrackStats)

	if streamHandler != nil {
		mux.HandleFunc("GET /api/v1/stream/track", streamHandler.HandleTrack)
		mux.HandleFunc("GET /api/v1/stream/track/ws", streamHandler.HandleTrackWS)
	}

	if webHandler != nil {
		mux.Handle("GET /", webHandler)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
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
// SSE and WebSocket handlers need for deadlines, flushing and hijacking.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
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
