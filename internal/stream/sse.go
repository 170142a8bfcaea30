// Package stream implements live streaming of solar track frames over
// Server-Sent Events (SSE) and WebSocket. Clients connect via
// GET /api/v1/stream/track and receive a continuous stream of per-site sun
// positions from the track cache.
//
// SSE message format:
//
//	data: {"type":"track_frame","t":"2026-02-06T04:00:00Z","sites":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","catalog_loaded_at":"...","catalog_age_seconds":1800,"sites":12}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sun/sunwatch/internal/httputil"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/sites"
	"github.com/sun/sunwatch/internal/solartrack"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Trust X-Forwarded-For for rate limiting.
}

// Handler manages streaming connections.
type Handler struct {
	cache   *solartrack.TrackCache
	store   *sites.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(cache *solartrack.TrackCache, store *sites.Store, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		cache:   cache,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// streamParams holds the validated query parameters shared by the SSE and
// WebSocket endpoints.
type streamParams struct {
	step  int
	trail int
	slugs map[string]bool // nil means all sites
}

// parseStreamParams validates step, trail and sites query parameters.
// Returns a non-empty error message on invalid input.
func parseStreamParams(r *http.Request) (streamParams, string) {
	p := streamParams{step: 5, trail: 0}

	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return p, "invalid step parameter, must be 1-60"
		}
		p.step = n
	}

	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			return p, "invalid trail parameter, must be 0-120"
		}
		p.trail = n
	}

	if v := r.URL.Query().Get("sites"); v != "" {
		p.slugs = make(map[string]bool)
		for _, slug := range strings.Split(v, ",") {
			slug = strings.TrimSpace(slug)
			if slug == "" {
				return p, "invalid sites parameter, empty slug"
			}
			p.slugs[slug] = true
		}
	}

	return p, ""
}

// HandleTrack serves the SSE track stream.
// GET /api/v1/stream/track?step=5&trail=20&sites=greenwich,quito
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	params, errMsg := parseStreamParams(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	// Track connection metrics.
	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", params.step,
		"trail", params.trail,
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	if catalog := h.store.Get(); catalog != nil {
		if err := c.sendJSON(buildMetadataMessage(catalog)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	// Stream frames at the requested step interval.
	ticker := time.NewTicker(time.Duration(params.step) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			frame := h.cache.Get(t)
			if frame == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss",
					"timestamp", h.cache.RoundToStep(t).UTC().Format(time.RFC3339),
					"remote_ip", ip,
				)
				continue
			}

			var trailFrames []*solartrack.Frame
			if params.trail > 0 {
				trailFrames = h.cache.GetRecent(t, params.trail)
			}

			msg := buildFrameMessage(frame, trailFrames, params.slugs)
			data, err := json.Marshal(msg)
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildMetadataMessage formats the catalog metadata payload.
func buildMetadataMessage(catalog *sites.Catalog) metadataMessage {
	return metadataMessage{
		Type:            "metadata",
		CatalogLoadedAt: catalog.LoadedAt.UTC().Format(time.RFC3339),
		CatalogAge:      int(time.Since(catalog.LoadedAt).Seconds()),
		Sites:           len(catalog.Sites),
	}
}

// buildFrameMessage formats a frame into the stream payload. If trailFrames
// is non-empty, each site includes past [altitude, azimuth] pairs (oldest
// first). A non-nil slugs set restricts the payload to those sites.
func buildFrameMessage(frame *solartrack.Frame, trailFrames []*solartrack.Frame, slugs map[string]bool) trackFrameMessage {
	// Build index: slug -> trail positions (oldest first).
	var trailIndex map[string][][2]float64
	if len(trailFrames) > 0 {
		trailIndex = make(map[string][][2]float64, len(frame.Sites))
		for _, tf := range trailFrames {
			for _, p := range tf.Sites {
				if slugs != nil && !slugs[p.Slug] {
					continue
				}
				trailIndex[p.Slug] = append(trailIndex[p.Slug], [2]float64{p.Altitude, p.Azimuth})
			}
		}
	}

	points := make([]sitePayload, 0, len(frame.Sites))
	for _, p := range frame.Sites {
		if slugs != nil && !slugs[p.Slug] {
			continue
		}
		sp := sitePayload{
			Slug:    p.Slug,
			Alt:     p.Altitude,
			Az:      p.Azimuth,
			Visible: p.Visible,
		}
		if trailIndex != nil {
			if tr, ok := trailIndex[p.Slug]; ok {
				sp.Tr = tr
			}
		}
		points = append(points, sp)
	}
	return trackFrameMessage{
		Type:  "track_frame",
		T:     frame.Timestamp.UTC().Format(time.RFC3339),
		Sites: points,
	}
}

// Stream message payload types.

type metadataMessage struct {
	Type            string `json:"type"`
	CatalogLoadedAt string `json:"catalog_loaded_at"`
	CatalogAge      int    `json:"catalog_age_seconds"`
	Sites           int    `json:"sites"`
}

type trackFrameMessage struct {
	Type  string        `json:"type"`
	T     string        `json:"t"`
	Sites []sitePayload `json:"sites"`
}

type sitePayload struct {
	Slug    string       `json:"slug"`
	Alt     float64      `json:"alt"`
	Az      float64      `json:"az"`
	Visible bool         `json:"visible"`
	Tr      [][2]float64 `json:"tr,omitempty"`
}
