package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunwatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sunwatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunwatch_calculations_total",
			Help: "Total number of rise/set event searches, by caller.",
		},
		[]string{"source"},
	)

	calculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sunwatch_calculation_duration_seconds",
			Help:    "Duration of a single rise/set event search.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	catalogSites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunwatch_catalog_sites",
			Help: "Number of observer sites in the active catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunwatch_catalog_age_seconds",
			Help: "Age of the active site catalog in seconds.",
		},
	)

	trackCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunwatch_track_cache_entries",
			Help: "Number of frames in the solar track cache.",
		},
	)

	trackCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_track_cache_hits_total",
			Help: "Track cache lookups served from the cache.",
		},
	)

	trackCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_track_cache_misses_total",
			Help: "Track cache lookups that found no frame.",
		},
	)

	trackCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_track_cache_evictions_total",
			Help: "Frames evicted from the trailing edge of the track cache.",
		},
	)

	trackRegenErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_track_regeneration_errors_total",
			Help: "Failed track frame generations.",
		},
	)

	trackRegenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sunwatch_track_regeneration_duration_seconds",
			Help:    "Duration of track frame generation runs.",
			Buckets: prometheus.DefBuckets,
		},
	)

	trackGracePeriod = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunwatch_track_grace_period_active",
			Help: "1 while the track cache is rebuilding after a catalog change.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunwatch_stream_connections_total",
			Help: "Stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunwatch_streams_active",
			Help: "Currently connected stream clients.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_stream_messages_total",
			Help: "Messages sent to stream clients.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_stream_bytes_total",
			Help: "Bytes sent to stream clients.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunwatch_stream_errors_total",
			Help: "Stream errors by reason.",
		},
		[]string{"reason"},
	)

	mqttPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunwatch_mqtt_published_total",
			Help: "MQTT messages published, by topic kind.",
		},
		[]string{"kind"},
	)

	historyInserts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_history_inserts_total",
			Help: "Event rows written to the history database.",
		},
	)

	historyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunwatch_history_errors_total",
			Help: "Failed history database operations.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		calculationsTotal,
		calculationDuration,
		catalogSites,
		catalogAgeSeconds,
		trackCacheEntries,
		trackCacheHits,
		trackCacheMisses,
		trackCacheEvictions,
		trackRegenErrors,
		trackRegenDuration,
		trackGracePeriod,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
		mqttPublished,
		historyInserts,
		historyErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCalculation records one event search and its duration.
func ObserveCalculation(source string, d time.Duration) {
	calculationsTotal.WithLabelValues(source).Inc()
	calculationDuration.Observe(d.Seconds())
}

// SetCatalogSites publishes the active catalog size.
func SetCatalogSites(n int) { catalogSites.Set(float64(n)) }

// SetCatalogAge publishes the active catalog age in seconds.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// Track cache instrumentation.

func SetTrackCacheEntries(n int) { trackCacheEntries.Set(float64(n)) }
func IncTrackCacheHits()         { trackCacheHits.Inc() }
func IncTrackCacheMisses()       { trackCacheMisses.Inc() }
func AddTrackCacheEvictions(n int) {
	trackCacheEvictions.Add(float64(n))
}
func IncTrackRegenerationErrors() { trackRegenErrors.Inc() }
func ObserveTrackRegenerationDuration(d time.Duration) {
	trackRegenDuration.Observe(d.Seconds())
}
func SetTrackGracePeriodActive(active bool) {
	if active {
		trackGracePeriod.Set(1)
	} else {
		trackGracePeriod.Set(0)
	}
}

// Stream instrumentation.

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrors.WithLabelValues(reason).Inc() }

// MQTT and history instrumentation.

func IncMQTTPublished(kind string) { mqttPublished.WithLabelValues(kind).Inc() }
func IncHistoryInserts()           { historyInserts.Inc() }
func IncHistoryErrors()            { historyErrors.Inc() }

// knownRoutes are the exact paths exported as metric labels.
var knownRoutes = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/events":          true,
	"/api/v1/position":        true,
	"/api/v1/sites":           true,
	"/api/v1/track/stats":     true,
	"/api/v1/stream/track":    true,
	"/api/v1/stream/track/ws": true,
}

// normalizeRoute maps a request path to a bounded label set so that
// per-site paths and bot scans cannot explode metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/sites/"); ok {
		if strings.HasSuffix(rest, "/events") {
			return "/api/v1/sites/{slug}/events"
		}
		if strings.HasSuffix(rest, "/history") {
			return "/api/v1/sites/{slug}/history"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// SSE and WebSocket handlers need for deadlines, flushing and hijacking.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
