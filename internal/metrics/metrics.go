// Package metrics records node executions and turn outcomes in Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metalagman/agency/internal/sdlc/directive"
)

const namespace = "agency"

// Recorder implements node.Recorder and the session turn observer on top of
// a dedicated Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	nodeExecutions *prometheus.CounterVec
	directives     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	turnsTotal     *prometheus.CounterVec
	turnSteps      prometheus.Histogram
}

// New creates a recorder with its own registry. Go runtime and process
// collectors are registered as well.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		nodeExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_executions_total",
				Help:      "Total number of agent node executions by role and status",
			},
			[]string{"role", "status"},
		),
		directives: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directives_total",
				Help:      "Total number of directives emitted by role",
			},
			[]string{"role", "directive"},
		),
		nodeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Duration of agent node executions including oracle latency",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"role"},
		),
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of session turns by outcome",
			},
			[]string{"outcome"},
		),
		turnSteps: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_steps",
				Help:      "Number of graph steps applied per turn",
				Buckets:   prometheus.LinearBuckets(1, 2, 13),
			},
		),
	}
}

// ObserveNode records one node execution.
func (r *Recorder) ObserveNode(role string, d directive.Directive, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.nodeExecutions.WithLabelValues(role, status).Inc()
	r.nodeDuration.WithLabelValues(role).Observe(elapsed.Seconds())
	if err == nil {
		r.directives.WithLabelValues(role, d.String()).Inc()
	}
}

// ObserveTurn records the outcome of a session turn.
func (r *Recorder) ObserveTurn(outcome string, steps int) {
	r.turnsTotal.WithLabelValues(outcome).Inc()
	r.turnSteps.Observe(float64(steps))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
