// Package metrics provides Prometheus metrics collection for resrun.
package metrics

import (
	"time"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "resrun"

// Collector holds all Prometheus metrics for resrun. It implements
// resource.Observer.
type Collector struct {
	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec

	// Hook metrics
	HooksTotal *prometheus.CounterVec

	// Event metrics
	EventsTotal    *prometheus.CounterVec
	EventListeners *prometheus.HistogramVec

	// Definition metrics
	DefinitionLoads *prometheus.CounterVec

	// Request metrics for the JSON-RPC endpoint
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "invocations_total",
				Help:      "Total number of method invocations",
			},
			[]string{"method", "outcome"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Method invocation duration in seconds, hooks included",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"method"},
		),
		HooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "hooks_total",
				Help:      "Total number of hook expressions executed",
			},
			[]string{"phase"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_total",
				Help:      "Total number of events emitted on resources",
			},
			[]string{"event"},
		),
		EventListeners: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "event_listeners",
				Help:      "Number of listeners run per emitted event",
				Buckets:   []float64{0, 1, 2, 5, 10, 25},
			},
			[]string{"event"},
		),
		DefinitionLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "definition_loads_total",
				Help:      "Total number of definitions loaded",
			},
			[]string{"outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "requests_in_flight",
				Help:      "Number of JSON-RPC requests currently being processed",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}

// DefinitionLoaded implements resource.Observer.
func (c *Collector) DefinitionLoaded(location string, err error) {
	c.DefinitionLoads.WithLabelValues(outcome(err)).Inc()
}

// InvocationFinished implements resource.Observer.
func (c *Collector) InvocationFinished(method string, duration time.Duration, err error) {
	c.InvocationsTotal.WithLabelValues(method, outcome(err)).Inc()
	c.InvocationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// HookExecuted implements resource.Observer.
func (c *Collector) HookExecuted(phase string) {
	c.HooksTotal.WithLabelValues(phase).Inc()
}

// EventDispatched implements resource.Observer.
func (c *Collector) EventDispatched(event string, listeners int) {
	c.EventsTotal.WithLabelValues(event).Inc()
	c.EventListeners.WithLabelValues(event).Observe(float64(listeners))
}

// outcome labels an error by its kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// Ensure interface compliance.
var _ resource.Observer = (*Collector)(nil)
