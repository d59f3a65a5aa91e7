package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skypass_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_propagations_total",
			Help: "Single-satellite propagations by model.",
		},
		[]string{"model"},
	)

	decaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_decays_total",
			Help: "Propagations that reported a decayed orbit, by model.",
		},
		[]string{"model"},
	)

	deepRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_deep_space_restarts_total",
			Help: "Times a deep-space resonance integrator restarted from epoch.",
		},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_batch_duration_seconds",
			Help:    "Wall time of one catalog-wide propagation batch.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	batchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_batch_results_total",
			Help: "Per-satellite results of catalog-wide propagation batches.",
		},
		[]string{"result"},
	)

	searchIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skypass_pass_search_iterations",
			Help:    "Propagator evaluations spent per pass search.",
			Buckets: prometheus.ExponentialBuckets(4, 2, 10),
		},
		[]string{"kind"},
	)

	searchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_pass_search_outcomes_total",
			Help: "Pass searches by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	catalogSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_catalog_satellites",
			Help: "Element sets in the active catalog.",
		},
	)

	catalogFetchedAt = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_catalog_fetched_timestamp_seconds",
			Help: "Unix time the active catalog was fetched.",
		},
	)

	catalogFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_catalog_fetch_errors_total",
			Help: "Failed catalog fetches.",
		},
	)

	schedulePasses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_schedule_passes",
			Help: "Upcoming passes held in the schedule cache.",
		},
	)

	scheduleRebuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_schedule_rebuild_seconds",
			Help:    "Time to rebuild the pass schedule.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_stream_clients",
			Help: "Connected tracking stream clients.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_stream_messages_total",
			Help: "SSE data messages sent to tracking clients.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_stream_bytes_total",
			Help: "Bytes written to tracking clients, keep-alives included.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_stream_errors_total",
			Help: "Tracking stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationsTotal,
		decaysTotal,
		deepRestartsTotal,
		batchDurationSeconds,
		batchResultsTotal,
		searchIterations,
		searchOutcomesTotal,
		catalogSatellites,
		catalogFetchedAt,
		catalogFetchErrors,
		schedulePasses,
		scheduleRebuildSeconds,
		streamClients,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation counts one propagation with the given model label.
func RecordPropagation(model string, decayed bool) {
	propagationsTotal.WithLabelValues(model).Inc()
	if decayed {
		decaysTotal.WithLabelValues(model).Inc()
	}
}

// RecordDeepRestart counts one integrator restart.
func RecordDeepRestart() {
	deepRestartsTotal.Inc()
}

// RecordBatch records one catalog-wide propagation batch.
func RecordBatch(d time.Duration, success, failed int) {
	batchDurationSeconds.Observe(d.Seconds())
	batchResultsTotal.WithLabelValues("success").Add(float64(success))
	batchResultsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordSearch records a pass search of the given kind ("aos", "los",
// "max_elevation") with its evaluation count and outcome.
func RecordSearch(kind, outcome string, iterations int) {
	searchIterations.WithLabelValues(kind).Observe(float64(iterations))
	searchOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// SetCatalog publishes the active catalog size and fetch time.
func SetCatalog(satellites int, fetchedAt time.Time) {
	catalogSatellites.Set(float64(satellites))
	catalogFetchedAt.Set(float64(fetchedAt.Unix()))
}

// RecordFetchError counts a failed catalog fetch.
func RecordFetchError() {
	catalogFetchErrors.Inc()
}

// RecordScheduleRebuild publishes the outcome of a schedule rebuild.
func RecordScheduleRebuild(d time.Duration, passes int) {
	scheduleRebuildSeconds.Observe(d.Seconds())
	schedulePasses.Set(float64(passes))
}

// SetSchedulePasses updates the schedule size after eviction.
func SetSchedulePasses(n int) {
	schedulePasses.Set(float64(n))
}

// StreamConnected and StreamDisconnected track live stream clients.
func StreamConnected()    { streamClients.Inc() }
func StreamDisconnected() { streamClients.Dec() }

// RecordStreamWrite counts bytes written to a stream; message is false for
// keep-alives.
func RecordStreamWrite(bytes int, message bool) {
	streamBytesTotal.Add(float64(bytes))
	if message {
		streamMessagesTotal.Inc()
	}
}

// RecordStreamError counts a stream error ("rate_limit", "send_error",
// "decayed", ...).
func RecordStreamError(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
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

// Flush passes through so streaming handlers keep working behind the
// middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

var knownRoutes = map[string]bool{
	"/":                         true,
	"/healthz":                  true,
	"/readyz":                   true,
	"/metrics":                  true,
	"/api/v1/tle/metadata":      true,
	"/api/v1/tle/fetch":         true,
	"/api/v1/catalog/snapshot":  true,
	"/api/v1/catalog/keyframes": true,
}

var paramRoute = regexp.MustCompile(`^/api/v1/(elements|propagate|observe|passes|schedule|stream/track)/[^/]+$`)

// normalizeRoute maps a request path to a bounded label set so that
// catalog numbers and station names do not explode metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if m := paramRoute.FindStringSubmatch(path); m != nil {
		if m[1] == "schedule" {
			return "/api/v1/schedule/{station}"
		}
		return "/api/v1/" + m[1] + "/{norad_id}"
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
