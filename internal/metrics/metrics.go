package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route labels for dispatch decisions
const (
	RouteResume   = "resume"
	RouteNotify   = "notify"
	RouteRejected = "rejected"
)

// Metrics holds the bridge's Prometheus collectors.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Update router metrics
	UpdatesTotal *prometheus.CounterVec

	// Dispatch metrics
	DispatchesTotal *prometheus.CounterVec
	ResumesTotal    *prometheus.CounterVec
	ResumeDuration  prometheus.Histogram
	QueueDepth      prometheus.Gauge

	// Hook metrics
	HookEventsTotal *prometheus.CounterVec

	// Transport metrics
	TransportErrors *prometheus.CounterVec
}

// New creates a metrics set on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_updates_total",
				Help: "Inbound chat updates by decoded kind",
			},
			[]string{"kind"},
		),
		DispatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_dispatches_total",
				Help: "Dispatch decisions by route",
			},
			[]string{"route"},
		),
		ResumesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_resumes_total",
				Help: "Resume invocations by outcome",
			},
			[]string{"outcome"},
		),
		ResumeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_resume_duration_seconds",
				Help:    "Wall-clock time of resume invocations",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		),
		QueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_worker_queue_depth",
				Help: "Dispatches waiting for a worker",
			},
		),
		HookEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_hook_events_total",
				Help: "Lifecycle hook events received by event name",
			},
			[]string{"event"},
		),
		TransportErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_transport_errors_total",
				Help: "Failed chat transport calls by method",
			},
			[]string{"method"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (used by tests)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordUpdate counts an inbound update
func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordDispatch counts a dispatch decision
func (m *Metrics) RecordDispatch(route string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(route).Inc()
}

// RecordResume records a finished resume invocation
func (m *Metrics) RecordResume(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ResumesTotal.WithLabelValues(outcome).Inc()
	m.ResumeDuration.Observe(duration.Seconds())
}

// SetQueueDepth sets the number of queued dispatches
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordHookEvent counts a lifecycle hook event
func (m *Metrics) RecordHookEvent(event string) {
	if m == nil {
		return
	}
	m.HookEventsTotal.WithLabelValues(event).Inc()
}

// RecordTransportError counts a failed transport call
func (m *Metrics) RecordTransportError(method string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(method).Inc()
}
