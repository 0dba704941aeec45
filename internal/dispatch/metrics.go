package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dispatch core.
type Metrics struct {
	AttemptsTotal  *prometheus.CounterVec
	RetriesTotal   prometheus.Counter
	RedirectsTotal *prometheus.CounterVec

	ScriptCacheHits  prometheus.Counter
	ScriptLoadsTotal prometheus.Counter

	AttemptDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every dispatch metric under namespace
// (empty namespace means no prefix).
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Total single-attempt wire round-trips, by outcome",
			},
			[]string{"outcome"},
		),

		RetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_retries_total",
				Help:      "Total retries issued after a Retriable or TimedOut attempt outcome",
			},
		),

		RedirectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_redirects_total",
				Help:      "Total MOVED/ASK redirects followed",
			},
			[]string{"kind"}, // moved, ask
		),

		ScriptCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_script_cache_hits_total",
				Help:      "EVALSHA dispatches that found their digest already cached",
			},
		),

		ScriptLoadsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_script_loads_total",
				Help:      "SCRIPT LOAD fallbacks issued after a NOSCRIPT response",
			},
		),

		AttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_attempt_duration_seconds",
				Help:      "Wall time of a single wire round-trip",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeRetriable:
		return "retriable"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
