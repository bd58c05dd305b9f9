// Package metrics exposes export and refresh counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	items         *prometheus.GaugeVec
	bytesWritten  *prometheus.GaugeVec
	failures      prometheus.Gauge
	state         *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	requests      *prometheus.CounterVec
}

// States the refresh gauge is labelled with.
var refreshStates = []string{"idle", "waiting", "running", "paused", "stopped"}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodka_export_cycles_total",
			Help: "Export runs by artifact kind and result.",
		}, []string{"kind", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodka_export_cycle_duration_seconds",
			Help:    "Wall time of export runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vodka_export_items",
			Help: "Items written by the last successful export.",
		}, []string{"kind", "item"}),
		bytesWritten: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vodka_export_bytes",
			Help: "Size of the last published artifact.",
		}, []string{"kind"}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vodka_refresh_consecutive_failures",
			Help: "Consecutive failed refresh cycles.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vodka_refresh_state",
			Help: "1 for the refresh scheduler's current state.",
		}, []string{"state"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vodka_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful EPG export.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodka_provider_requests_total",
			Help: "Provider calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
	}
	m.Registry.MustRegister(m.cycles, m.cycleDuration, m.items, m.bytesWritten,
		m.failures, m.state, m.lastSuccess, m.requests)
	m.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one export run. A nil Metrics ignores the call.
func (m *Metrics) ObserveCycle(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(kind, result).Inc()
	m.cycleDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetItems records how many items of a kind the last export wrote.
func (m *Metrics) SetItems(kind, item string, n int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(kind, item).Set(float64(n))
}

func (m *Metrics) SetBytes(kind string, n int64) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) SetFailures(n int) {
	if m == nil {
		return
	}
	m.failures.Set(float64(n))
}

// SetState marks state as current and clears the others.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range refreshStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetLastSuccess(t time.Time) {
	if m == nil || t.IsZero() {
		return
	}
	m.lastSuccess.Set(float64(t.Unix()))
}

// ObserveRequest counts one provider call.
func (m *Metrics) ObserveRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(endpoint, result).Inc()
}
