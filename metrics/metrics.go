package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors.
type Metrics struct {
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EnrollmentsTotal    *prometheus.CounterVec
	ProgressUpdateTotal prometheus.Counter
	PaymentsTotal       *prometheus.CounterVec
	WebhookEventsTotal  *prometheus.CounterVec
	SweepRunsTotal      *prometheus.CounterVec
}

var (
	global *Metrics
	mu     sync.Mutex
)

// New returns the process wide metrics, registering them on first use.
func New() *Metrics {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return global
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		EnrollmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_enrollments_total",
			Help: "Enrollments created, by source",
		}, []string{"source"}),

		ProgressUpdateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lms_progress_updates_total",
			Help: "Lecture completion marks applied",
		}),

		PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_payments_total",
			Help: "Payment ledger transitions, by gateway and resulting status",
		}, []string{"gateway", "status"}),

		WebhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_webhook_events_total",
			Help: "Payment provider callbacks, by event type and outcome",
		}, []string{"type", "outcome"}),

		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_reconcile_runs_total",
			Help: "Reconciliation sweep runs, by outcome",
		}, []string{"outcome"}),
	}

	m.HTTPRequestTotal = register(m.HTTPRequestTotal).(*prometheus.CounterVec)
	m.HTTPRequestDuration = register(m.HTTPRequestDuration).(*prometheus.HistogramVec)
	m.EnrollmentsTotal = register(m.EnrollmentsTotal).(*prometheus.CounterVec)
	m.ProgressUpdateTotal = register(m.ProgressUpdateTotal).(prometheus.Counter)
	m.PaymentsTotal = register(m.PaymentsTotal).(*prometheus.CounterVec)
	m.WebhookEventsTotal = register(m.WebhookEventsTotal).(*prometheus.CounterVec)
	m.SweepRunsTotal = register(m.SweepRunsTotal).(*prometheus.CounterVec)

	global = m
	return m
}

func register(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func (m *Metrics) ObserveRequest(method, path, status string, d time.Duration) {
	m.HTTPRequestTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
