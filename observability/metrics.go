// Package observability provides Prometheus metrics instrumentation for the
// assistant core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// GRAPH METRICS
// =============================================================================

var (
	graphRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_graph_runs_total",
			Help: "Total number of orchestration graph runs",
		},
		[]string{"status"}, // status: success, error
	)

	graphStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_graph_stage_duration_seconds",
			Help:    "Graph stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"}, // stage: router, handler, collaboration
	)
)

// =============================================================================
// HANDLER METRICS
// =============================================================================

var (
	handlerExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_handler_executions_total",
			Help: "Total number of handler executions",
		},
		[]string{"handler", "status"}, // status: success, error
	)

	handlerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_handler_duration_seconds",
			Help:    "Handler execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"handler"},
	)

	cascadesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cascades_total",
			Help: "Total number of rule-triggered cascades",
		},
		[]string{"rule", "strategy", "status"},
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"provider", "status"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_tokens_total",
			Help: "Total tokens consumed by LLM calls",
		},
		[]string{"provider"},
	)
)

// =============================================================================
// QUEUE METRICS
// =============================================================================

var (
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_jobs_enqueued_total",
			Help: "Total notification jobs submitted to the queue",
		},
		[]string{"status"}, // status: accepted, duplicate, failed
	)

	deadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_dead_letters_total",
			Help: "Total plans written to the dead-letter sink",
		},
		[]string{"reason"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordGraphRun records an orchestration graph run.
func RecordGraphRun(status string) {
	graphRunsTotal.WithLabelValues(status).Inc()
}

// RecordGraphStage records a graph stage duration.
func RecordGraphStage(stage string, durationMS int) {
	graphStageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordHandlerExecution records a handler execution.
func RecordHandlerExecution(handler, status string, durationMS int) {
	handlerExecutionsTotal.WithLabelValues(handler, status).Inc()
	handlerDurationSeconds.WithLabelValues(handler).Observe(float64(durationMS) / 1000.0)
}

// RecordCascade records a rule-triggered cascade.
func RecordCascade(rule, strategy, status string) {
	cascadesTotal.WithLabelValues(rule, strategy, status).Inc()
}

// RecordLLMCall records an LLM call and its token usage.
func RecordLLMCall(provider, status string, totalTokens int) {
	llmCallsTotal.WithLabelValues(provider, status).Inc()
	if totalTokens > 0 {
		llmTokensTotal.WithLabelValues(provider).Add(float64(totalTokens))
	}
}

// RecordJobEnqueued records a queue submission outcome.
func RecordJobEnqueued(status string) {
	jobsEnqueuedTotal.WithLabelValues(status).Inc()
}

// RecordDeadLetter records a dead-letter write.
func RecordDeadLetter(reason string) {
	deadLettersTotal.WithLabelValues(reason).Inc()
}
