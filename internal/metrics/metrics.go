package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission collects the counters the admission pipeline reports on every
// request: authentication outcomes, rate limit decisions per layer, and the
// auth gate's record cache behavior.
type Admission struct {
	AuthAttempts       *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	PermissionChecks   *prometheus.CounterVec
	AdmissionLatency   prometheus.Histogram
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

func NewAdmission(namespace string, reg prometheus.Registerer) *Admission {
	if namespace == "" {
		namespace = "devportal"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Admission{
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Authentication attempts by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Rate limit decisions by layer, outcome and algorithm",
			},
			[]string{"layer", "outcome", "algorithm"},
		),
		PermissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_checks_total",
				Help:      "Permission evaluations by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		AdmissionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "admission_duration_seconds",
				Help:      "Latency of the full admission pipeline",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_cache_hits_total",
				Help:      "API key record cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_cache_misses_total",
				Help:      "API key record cache misses",
			},
		),
	}
}
