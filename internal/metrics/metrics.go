// Package metrics exposes Prometheus instruments for the dashboard. A nil
// *Metrics is valid and records nothing.
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

const namespace = "budget"

type Metrics struct {
	registry *prometheus.Registry

	httpDuration      *prometheus.HistogramVec
	entryMutations    *prometheus.CounterVec
	settingsFallbacks prometheus.Counter
	renderDuration    prometheus.Histogram
	mirroredEvents    *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
		entryMutations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "mutations_total",
			},
			[]string{"operation", "outcome"},
		),
		settingsFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "fallbacks_total",
			Help:      "Renders that used the default split because saved settings were unusable.",
		}),
		renderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "render_duration_seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		mirroredEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "mirrored_events_total",
			},
			[]string{"kind", "outcome"},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveMutation counts an append/update/delete/save attempt.
func (m *Metrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.entryMutations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) SettingsFallback() {
	if m == nil {
		return
	}
	m.settingsFallbacks.Inc()
}

func (m *Metrics) ObserveRender(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMirror(kind string, err error) {
	if m == nil {
		return
	}
	m.mirroredEvents.WithLabelValues(kind, outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
