// Package metrics exposes pipeline counters for the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_stage_runs_total",
		Help: "Number of pipeline stage executions by stage name.",
	}, []string{"stage"})

	UnitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_unit_failures_total",
		Help: "Per-unit failures within a stage, partitioned by retriability.",
	}, []string{"stage", "retriable"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_stage_duration_seconds",
		Help:    "Wall time of a single stage execution.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
)
