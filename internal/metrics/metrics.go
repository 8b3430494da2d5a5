// Package metrics registers the Prometheus collectors for the orbview
// service: HTTP surface, propagation throughput, event detection, the frame
// cache, and SSE streaming.
package metrics

import (
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
			Name: "orbview_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbview_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbview_propagation_duration_seconds",
			Help:    "Duration of batch propagation calls.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	propagationSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbview_propagation_samples_total",
			Help: "Propagation samples by outcome.",
		},
		[]string{"outcome"},
	)

	seriesAborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_series_aborts_total",
			Help: "Sampling series aborted early by the consecutive-failure rule.",
		},
	)

	eventsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbview_proximity_events_total",
			Help: "Proximity events emitted by the detector, by kind.",
		},
		[]string{"kind"},
	)

	frameCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_frame_cache_hits_total",
			Help: "Frame cache hits.",
		},
	)

	frameCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_frame_cache_misses_total",
			Help: "Frame cache misses.",
		},
	)

	frameCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_frame_cache_evictions_total",
			Help: "Frame cache entries evicted.",
		},
	)

	frameCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbview_frame_cache_entries",
			Help: "Frames currently cached.",
		},
	)

	frameBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbview_frame_build_duration_seconds",
			Help:    "Duration of full frame snapshot builds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	frameCacheCutoverActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbview_frame_cache_cutover_active",
			Help: "1 while the frame cache is rebuilding after a catalog change.",
		},
	)

	catalogSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbview_catalog_satellites",
			Help: "Satellites currently in the catalog.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbview_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbview_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbview_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbview_stream_errors_total",
			Help: "SSE stream errors by cause.",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDuration,
		propagationSamples,
		seriesAborts,
		eventsDetected,
		frameCacheHits,
		frameCacheMisses,
		frameCacheEvictions,
		frameCacheEntries,
		frameBuildDuration,
		frameCacheCutoverActive,
		catalogSatellites,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch propagation call.
func RecordPropagation(d time.Duration, success, failure int) {
	propagationDuration.Observe(d.Seconds())
	propagationSamples.WithLabelValues("success").Add(float64(success))
	propagationSamples.WithLabelValues("failure").Add(float64(failure))
}

// IncSeriesAborts counts one early-aborted sampling series.
func IncSeriesAborts() { seriesAborts.Inc() }

// AddEventsDetected counts emitted proximity events for one detector kind.
func AddEventsDetected(kind string, n int) {
	eventsDetected.WithLabelValues(kind).Add(float64(n))
}

// Frame cache instrumentation.

func IncFrameCacheHits()      { frameCacheHits.Inc() }
func IncFrameCacheMisses()    { frameCacheMisses.Inc() }
func AddFrameCacheEvictions(n int) {
	frameCacheEvictions.Add(float64(n))
}
func SetFrameCacheEntries(n int) { frameCacheEntries.Set(float64(n)) }
func ObserveFrameBuildDuration(d time.Duration) {
	frameBuildDuration.Observe(d.Seconds())
}
func SetFrameCacheCutoverActive(active bool) {
	if active {
		frameCacheCutoverActive.Set(1)
	} else {
		frameCacheCutoverActive.Set(0)
	}
}

// SetCatalogSatellites publishes the current catalog size.
func SetCatalogSatellites(n int) { catalogSatellites.Set(float64(n)) }

// Stream instrumentation.

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }
func IncStreamErrors(cause string)      { streamErrors.WithLabelValues(cause).Inc() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// knownRoutes are the exact paths the server registers. Anything else is
// collapsed to "other" to keep label cardinality bounded against bot scans.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/satellites":    true,
	"/api/v1/positions":     true,
	"/api/v1/events":        true,
	"/api/v1/frame":         true,
	"/api/v1/frame/stats":   true,
	"/api/v1/time":          true,
	"/api/v1/time/pending":  true,
	"/api/v1/time/apply":    true,
	"/api/v1/time/cancel":   true,
	"/api/v1/time/step":     true,
	"/api/v1/time/slider":   true,
	"/api/v1/time/resume":   true,
	"/api/v1/stream/frames": true,
}

// parameterizedPrefixes map identifier-carrying prefixes to one label each.
var parameterizedPrefixes = []struct {
	prefix string
	label  string
}{
	{"/api/v1/satellites/", "/api/v1/satellites/{id}"},
	{"/api/v1/track/", "/api/v1/track/{id}"},
	{"/api/v1/events/", "/api/v1/events/{id}"},
}

// RouteLabel maps a request path onto the same bounded label set the HTTP
// metrics use, so span names and metric labels agree.
func RouteLabel(path string) string {
	return normalizeRoute(path)
}

// normalizeRoute maps a request path onto a bounded label set.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range parameterizedPrefixes {
		if strings.HasPrefix(path, p.prefix) {
			return p.label
		}
	}
	return "other"
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
