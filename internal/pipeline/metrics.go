package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_analyses_total",
		Help: "Completed pipeline invocations by outcome.",
	}, []string{"outcome"})

	degradedAgentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_degraded_agents_total",
		Help: "Agent roles that produced a degraded finding.",
	}, []string{"role"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triage_stage_duration_seconds",
		Help:    "Duration of pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})
)

const (
	outcomeSuccess              = "success"
	outcomeRetrievalUnavailable = "retrieval_unavailable"
	outcomeAnalysisUnavailable  = "analysis_unavailable"
)
