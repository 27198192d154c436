// Package metrics defines the Prometheus registry for pipeline stage
// durations, ingest/score counters, and circuit-breaker state, adapted
// from the teacher's MetricsRegistry (internal/interfaces/http/metrics.go)
// but scoped to this system's stages instead of scan steps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds every metric the pipeline emits.
type Registry struct {
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	PostsIngested   *prometheus.CounterVec
	PostsScored     *prometheus.CounterVec
	PostsAccepted   *prometheus.CounterVec
	ProbabilityGap  *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec
	RefreshTotal    *prometheus.CounterVec
}

// NewRegistry builds a fresh Registry. Callers register it against a
// prometheus.Registerer of their choosing (the default registry, or a
// private one in tests).
func NewRegistry() *Registry {
	return &Registry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evidengine_stage_duration_seconds",
				Help:    "Duration of each pipeline stage (ingest, score, compute, snapshot) in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "result"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidengine_stage_errors_total",
				Help: "Total non-fatal stage errors recorded by the orchestrator",
			},
			[]string{"stage", "kind"},
		),
		PostsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidengine_posts_ingested_total",
				Help: "Total raw posts upserted by the Ingestion Dispatcher, including posts ignored as duplicates",
			},
			[]string{"market_id"},
		),
		PostsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidengine_posts_scored_total",
				Help: "Total posts sent through the Scoring Dispatcher",
			},
			[]string{"market_id"},
		),
		PostsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidengine_posts_accepted_total",
				Help: "Total posts accepted by the Evidence Engine as evidence",
			},
			[]string{"market_id"},
		),
		ProbabilityGap: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evidengine_market_leader_probability",
				Help: "Current probability of the leading outcome per market",
			},
			[]string{"market_id"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evidengine_breaker_state",
				Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidengine_refresh_total",
				Help: "Total refresh() invocations by terminal status",
			},
			[]string{"status"},
		),
	}
}

// AcceptanceRatio reads back the current scored/accepted counter values
// for marketID and returns accepted/scored, in the same
// read-the-counter-back-via-Write idiom the teacher uses for its cache
// hit ratio (internal/interfaces/http/metrics.go). Returns 0 when no
// posts have been scored yet.
func (r *Registry) AcceptanceRatio(marketID string) float64 {
	scored := readCounterValue(r.PostsScored, marketID)
	accepted := readCounterValue(r.PostsAccepted, marketID)
	if scored == 0 {
		return 0
	}
	return accepted / scored
}

func readCounterValue(vec *prometheus.CounterVec, marketID string) float64 {
	counter, err := vec.GetMetricWithLabelValues(marketID)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// MustRegister registers every metric against reg, panicking on a
// duplicate-registration error (a programmer error, not a runtime one).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.StageDuration,
		r.StageErrors,
		r.PostsIngested,
		r.PostsScored,
		r.PostsAccepted,
		r.ProbabilityGap,
		r.BreakerState,
		r.RefreshTotal,
	)
}
