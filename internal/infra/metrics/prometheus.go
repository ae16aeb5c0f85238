// Package metrics registers the Prometheus collectors for MovieGPT.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviegpt_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moviegpt_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	chatLoopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviegpt_chat_loops_total",
			Help: "Completed orchestration loops by terminal outcome",
		},
		[]string{"outcome"},
	)

	chatLoopRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moviegpt_chat_loop_tool_rounds",
			Help:    "Tool rounds per orchestration loop",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
		},
	)

	chatLoopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moviegpt_chat_loop_duration_seconds",
			Help:    "Orchestration loop wall time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	queryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviegpt_query_executions_total",
			Help: "Read-only query executions by status (success, error, rejected)",
		},
		[]string{"status"},
	)

	queryExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moviegpt_query_execution_duration_seconds",
			Help:    "Query execution duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviegpt_llm_calls_total",
			Help: "Model collaborator calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	metadataLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviegpt_metadata_lookups_total",
			Help: "Movie metadata lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordChatLoop records one finished orchestration loop.
func RecordChatLoop(outcome string, rounds int, duration time.Duration) {
	chatLoopsTotal.WithLabelValues(outcome).Inc()
	chatLoopRounds.Observe(float64(rounds))
	chatLoopDuration.Observe(duration.Seconds())
}

// RecordQueryExecution records one executor call.
func RecordQueryExecution(status string, duration time.Duration) {
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryExecutionDuration.Observe(duration.Seconds())
}

// RecordLLMCall records one model collaborator call.
func RecordLLMCall(provider, status string) {
	llmCallsTotal.WithLabelValues(provider, status).Inc()
}

// RecordMetadataLookup records a metadata cache hit, miss, or upstream error.
func RecordMetadataLookup(result string) {
	metadataLookupsTotal.WithLabelValues(result).Inc()
}
