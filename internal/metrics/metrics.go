// Package metrics holds the Prometheus collectors for the ledger server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for ledger transactions
const (
	OutcomeCommitted = "committed"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Metrics groups the collectors so tests can use a private registry
type Metrics struct {
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	Transactions         *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec
	ActiveSubscriptions  prometheus.Gauge
	AchievementsUnlocked *prometheus.CounterVec
	RateLimited          prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Ledger transactions by event kind and outcome",
			},
			[]string{"event", "outcome"},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transaction_duration_seconds",
				Help:    "Duration of ledger transactions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_active_subscriptions",
			Help: "Live ledger subscriptions",
		}),
		AchievementsUnlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_achievements_unlocked_total",
				Help: "Achievements unlocked by id",
			},
			[]string{"achievement"},
		),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests,
			m.HTTPDuration,
			m.Transactions,
			m.TransactionDuration,
			m.ActiveSubscriptions,
			m.AchievementsUnlocked,
			m.RateLimited,
		)
	}
	return m
}

// ObserveTransaction records one ledger transaction. Safe on a nil receiver.
func (m *Metrics) ObserveTransaction(event, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(event, outcome).Inc()
	m.TransactionDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// AchievementUnlocked counts newly unlocked achievements
func (m *Metrics) AchievementUnlocked(ids ...string) {
	if m == nil {
		return
	}
	for _, id := range ids {
		m.AchievementsUnlocked.WithLabelValues(id).Inc()
	}
}

// SubscriptionOpened and SubscriptionClosed track live streams
func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.ActiveSubscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.ActiveSubscriptions.Dec()
	}
}

// Limited counts a rate limited request
func (m *Metrics) Limited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

// Middleware records request counts and latency. The route label is the
// registered pattern when available so ids in paths don't explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(ww.status)).Inc()
		m.HTTPDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets server-sent event streams pass through the wrapper
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
