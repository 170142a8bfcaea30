package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sun/sunwatch/internal/httputil"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/solartrack"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from the embedded UI on the same origin;
	// non-browser clients send no Origin header at all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleTrackWS serves the track stream over WebSocket. The payloads are the
// same JSON messages the SSE endpoint sends, one per text frame.
// GET /api/v1/stream/track/ws?step=5&trail=20&sites=greenwich
func (h *Handler) HandleTrackWS(w http.ResponseWriter, r *http.Request) {
	params, errMsg := parseStreamParams(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("websocket rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.limiter.release(ip)
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("websocket connected",
		"remote_ip", ip,
		"step", params.step,
		"trail", params.trail,
	)

	defer func() {
		conn.Close()
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("websocket disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Reader goroutine: consume control frames and detect disconnect.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if catalog := h.store.Get(); catalog != nil {
		if err := h.writeWS(conn, buildMetadataMessage(catalog)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("websocket send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	ticker := time.NewTicker(time.Duration(params.step) * time.Second)
	defer ticker.Stop()

	pingTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer pingTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return

		case t := <-ticker.C:
			frame := h.cache.Get(t)
			if frame == nil {
				metrics.IncStreamErrors("cache_miss")
				continue
			}

			msg := buildFrameMessage(frame, h.trailFor(t, params.trail), params.slugs)
			if err := h.writeWS(conn, msg); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("websocket send error", "remote_ip", ip, "error", err)
				return
			}
			pingTicker.Reset(h.config.KeepaliveInterval)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.IncStreamErrors("send_error")
				return
			}
		}
	}
}

// trailFor returns up to count past frames ending at t, or nil.
func (h *Handler) trailFor(t time.Time, count int) []*solartrack.Frame {
	if count <= 0 {
		return nil
	}
	return h.cache.GetRecent(t, count)
}

// writeWS marshals v and writes it as a single text frame.
func (h *Handler) writeWS(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(len(data)))
	return nil
}
