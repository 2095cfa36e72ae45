// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRequestsTotal counts processed submissions by kind and terminal state.
	PipelineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labsage_pipeline_requests_total",
			Help: "Total submissions processed by the request pipeline",
		},
		[]string{"kind", "state"},
	)

	// AnalysisDuration tracks provider call duration, retries included.
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labsage_analysis_duration_seconds",
			Help:    "Generative provider call duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "input", "result"},
	)

	// StorageUploadsTotal counts object uploads by result.
	StorageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labsage_storage_uploads_total",
			Help: "Total object storage uploads",
		},
		[]string{"result"},
	)

	// StaleRequests is the number of requests stuck in processing state.
	StaleRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labsage_stale_requests",
			Help: "Analysis requests still processing past the stale threshold",
		},
	)

	// ScheduledTaskRunsTotal counts scheduled task executions by result.
	ScheduledTaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labsage_scheduled_task_runs_total",
			Help: "Total scheduled task runs",
		},
		[]string{"task", "result"},
	)
)
