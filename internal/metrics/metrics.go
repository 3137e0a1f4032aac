// Package metrics exposes Prometheus collectors for the monitor and the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results.
const (
	CycleCompleted = "completed"
	CyclePaused    = "paused"
	CycleFailed    = "failed"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	Probes          *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		Probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimebot_probes_total",
				Help: "Total number of probes issued, by result",
			},
			[]string{"result"},
		),
		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimebot_classifications_total",
				Help: "Total number of per-service classifications, by outcome",
			},
			[]string{"outcome"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimebot_notifications_total",
				Help: "Total number of operator notifications, by kind and delivery result",
			},
			[]string{"kind", "result"},
		),
		Cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimebot_cycles_total",
				Help: "Total number of monitor wakes, by result",
			},
			[]string{"result"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uptimebot_cycle_duration_seconds",
				Help:    "Wall-clock length of completed monitor cycles",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimebot_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "status"},
		),
	}
}

func (m *Metrics) RecordProbe(reachable bool) {
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	m.Probes.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordClassification(outcome string) {
	m.Classifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordCycle(result string, d time.Duration) {
	m.Cycles.WithLabelValues(result).Inc()
	if result == CycleCompleted {
		m.CycleDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRequest(method string, status int) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
