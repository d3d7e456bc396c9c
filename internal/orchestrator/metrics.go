package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitDelays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evalbuilder",
		Name:      "ratelimit_delays_total",
		Help:      "Model calls delayed by the per-session quota window",
	})

	rateLimitDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evalbuilder",
		Name:      "ratelimit_delay_seconds",
		Help:      "Time spent waiting for the quota window to reset",
		Buckets:   []float64{1, 5, 15, 30, 45, 60, 90},
	})

	stageInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalbuilder",
		Name:      "stage_invocations_total",
		Help:      "Sub-agent invocations by stage and result",
	}, []string{"stage", "result"})

	confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalbuilder",
		Name:      "confirmations_total",
		Help:      "Resolved confirmations by stage and decision",
	}, []string{"stage", "decision"})
)
