package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by all handlers.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Settlement-engine domain metrics.
var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Processor webhook events by outcome.",
		},
		[]string{"result"},
	)

	reconRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Reconciliation runs by outcome.",
		},
		[]string{"result"},
	)

	reconMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_mismatches_total",
			Help: "Discrepancies found during reconciliation, by kind.",
		},
		[]string{"kind"},
	)

	settledMinorUnitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_matured_minor_units_total",
		Help: "Minor units moved from pending to available by settlement runs.",
	})

	payoutPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_outbox_publish_total",
			Help: "Payout outbox messages published, by outcome.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		webhookEventsTotal, reconRunsTotal, reconMismatchesTotal,
		settledMinorUnitsTotal, payoutPublishTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// CountWebhookEvent records a webhook outcome: applied, duplicate,
// out_of_order, unknown_payment, bad_signature, error.
func CountWebhookEvent(result string) { webhookEventsTotal.WithLabelValues(result).Inc() }

// CountReconRun records a reconciliation run outcome: clean, mismatched, failed.
func CountReconRun(result string) { reconRunsTotal.WithLabelValues(result).Inc() }

// CountReconMismatch records one discrepancy of the given kind.
func CountReconMismatch(kind string) { reconMismatchesTotal.WithLabelValues(kind).Inc() }

// AddSettledMinorUnits accumulates matured funds across settlement runs.
func AddSettledMinorUnits(amount int64) {
	if amount > 0 {
		settledMinorUnitsTotal.Add(float64(amount))
	}
}

// CountPayoutPublish records an outbox publish outcome: sent, failed.
func CountPayoutPublish(result string) { payoutPublishTotal.WithLabelValues(result).Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(segments) >= 3 && segments[0] == "v1" && segments[1] == "payments":
		segments[2] = ":order"
	case len(segments) >= 3 && segments[0] == "v1" && segments[1] == "sellers":
		segments[2] = ":id"
	case len(segments) >= 3 && segments[0] == "v1" && segments[1] == "transactions":
		segments[2] = ":id"
	}
	return "/" + strings.Join(segments, "/")
}

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
