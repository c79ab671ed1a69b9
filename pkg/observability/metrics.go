package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Domain metrics
	redemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redemption attempts by outcome",
		},
		[]string{"outcome", "offline"},
	)

	fraudCasesOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraud_cases_opened_total",
			Help: "Fraud cases opened by the detector",
		},
	)

	fraudScoreDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraud_score_dropped_total",
			Help: "Redemptions dropped because the scoring queue was full",
		},
	)

	idempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Responses served from the idempotency cache",
		},
	)
)

// RecordRedemption counts one redemption attempt by outcome.
func RecordRedemption(outcome string, offline bool) {
	redemptionsTotal.WithLabelValues(outcome, strconv.FormatBool(offline)).Inc()
}

// RecordFraudCaseOpened counts one case opened by the detector.
func RecordFraudCaseOpened() {
	fraudCasesOpened.Inc()
}

// RecordFraudScoreDropped counts one redemption the scoring queue refused.
func RecordFraudScoreDropped() {
	fraudScoreDropped.Inc()
}

// RecordIdempotentReplay counts one replayed response.
func RecordIdempotentReplay() {
	idempotentReplays.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics returns middleware that records Prometheus metrics for every
// request. The path label uses the routing pattern, not the raw URL, to keep
// cardinality bounded.
func HTTPMetrics(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
	})
}
