// Package metrics records solver and evaluation counters with Prometheus.
//
// A one-shot CLI has no scrape endpoint, so the registry is written in the
// node-exporter textfile format when the run finishes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/thermo"
)

const namespace = "ancp"

// Evaluation status label values.
const (
	StatusConverged = "converged"
	StatusFailed    = "failed"
	StatusCached    = "cached"
)

// Recorder implements equilibrium.Observer and counts evaluations.
type Recorder struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	callSeconds *prometheus.HistogramVec
	evaluations *prometheus.CounterVec
	tFlame      prometheus.Gauge
}

var _ equilibrium.Observer = (*Recorder)(nil)

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_stage_attempts_total",
			Help:      "Equilibrium solver calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		callSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_call_seconds",
			Help:      "Wall time of equilibrium solver calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Performance evaluations by status.",
		}, []string{"status"}),
		tFlame: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_flame_temperature_kelvin",
			Help:      "Flame temperature of the most recent converged evaluation.",
		}),
	}
	r.registry.MustRegister(r.attempts, r.callSeconds, r.evaluations, r.tFlame)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveAttempt implements equilibrium.Observer.
func (r *Recorder) ObserveAttempt(a equilibrium.Attempt) {
	outcome := StatusConverged
	if !a.Converged {
		outcome = StatusFailed
	}
	stage := a.Stage.String()
	r.attempts.WithLabelValues(stage, outcome).Inc()
	r.callSeconds.WithLabelValues(stage).Observe(a.Duration.Seconds())
}

// ObserveEvaluation counts one finished evaluation.
func (r *Recorder) ObserveEvaluation(res *thermo.Result, cached bool) {
	switch {
	case cached:
		r.evaluations.WithLabelValues(StatusCached).Inc()
	case res.Failed():
		r.evaluations.WithLabelValues(StatusFailed).Inc()
		return
	default:
		r.evaluations.WithLabelValues(StatusConverged).Inc()
	}
	r.tFlame.Set(res.TFlame)
}

// WriteFile writes the registry to path in the textfile exposition format.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
