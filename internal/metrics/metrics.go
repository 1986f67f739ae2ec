package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcomes
const (
	OutcomeValid       = "valid"
	OutcomeInvalid     = "invalid"
	OutcomeMalformed   = "malformed"
	OutcomeBlocked     = "blocked"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	verifications  *prometheus.CounterVec
	clientsBlocked prometheus.Counter
	attackAlerts   prometheus.Counter
	sweptClients   prometheus.Counter
	trackedClients prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with registerer
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizgate_verifications_total",
			Help: "Access code verification attempts by outcome",
		}, []string{"outcome"}),
		clientsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizgate_clients_blocked_total",
			Help: "Clients blocked after consecutive failed verifications",
		}),
		attackAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizgate_attack_alerts_total",
			Help: "Attack alerts raised by the monitor",
		}),
		sweptClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizgate_ledger_swept_clients_total",
			Help: "Client security records removed by the periodic sweep",
		}),
		trackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quizgate_ledger_tracked_clients",
			Help: "Client security records held after the last sweep",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizgate_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registerer.MustRegister(
		m.verifications,
		m.clientsBlocked,
		m.attackAlerts,
		m.sweptClients,
		m.trackedClients,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// IncVerification counts one verification outcome
func (m *Metrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncClientBlocked() {
	if m == nil {
		return
	}
	m.clientsBlocked.Inc()
}

func (m *Metrics) IncAttackAlert() {
	if m == nil {
		return
	}
	m.attackAlerts.Inc()
}

// ObserveSweep records a sweep's removals and the remaining ledger size
func (m *Metrics) ObserveSweep(removed, remaining int) {
	if m == nil {
		return
	}
	m.sweptClients.Add(float64(removed))
	m.trackedClients.Set(float64(remaining))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(seconds)
}
