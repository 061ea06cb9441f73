// Package metrics records allocation runs in Prometheus form.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "allot"

// Outcome labels for allot_runs_total.
const (
	OutcomeCompleted              = "completed"
	OutcomeInputFormat            = "input_format"
	OutcomeInternalConsistency    = "internal_consistency"
	OutcomeDecompositionInvariant = "decomposition_invariant"
	OutcomeOther                  = "other"
)

// Recorder owns a private registry so batch runs can dump exactly their own
// series and tests do not collide on the default registry.
type Recorder struct {
	reg *prometheus.Registry

	runs     *prometheus.CounterVec
	rounds   prometheus.Histogram
	terms    prometheus.Histogram
	agents   prometheus.Gauge
	duration prometheus.Histogram
}

// New builds a Recorder. withRuntime adds Go and process collectors, which
// only make sense for the long-running server.
func New(withRuntime bool) *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Allocation runs by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eating_rounds",
			Help:      "Eating rounds needed until all supply was consumed.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		terms: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decomposition_terms",
			Help:      "Permutations in the Birkhoff decomposition.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Agents in the most recent run.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete allocation run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.reg.MustRegister(r.runs, r.rounds, r.terms, r.agents, r.duration)
	if withRuntime {
		r.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Runs exposes the run counter, labelled by outcome.
func (r *Recorder) Runs() *prometheus.CounterVec { return r.runs }

// ObserveRun records a successful run.
func (r *Recorder) ObserveRun(agents, rounds, terms int, d time.Duration) {
	r.runs.WithLabelValues(OutcomeCompleted).Inc()
	r.agents.Set(float64(agents))
	r.rounds.Observe(float64(rounds))
	r.terms.Observe(float64(terms))
	r.duration.Observe(d.Seconds())
}

// ObserveFailure records a failed run under outcome.
func (r *Recorder) ObserveFailure(outcome string, d time.Duration) {
	r.runs.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

// Handler serves the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
