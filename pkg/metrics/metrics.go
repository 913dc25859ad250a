// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhookEventsTotal counts inbound messaging events by outcome.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound Messenger events by outcome",
		},
		[]string{"outcome"},
	)

	// ThrottledTotal counts messages dropped by the per-sender cooldown.
	ThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "throttled_messages_total",
			Help: "Messages dropped by the sender cooldown",
		},
		[]string{"page_id"},
	)

	// RoutesTotal counts which route answered a message.
	RoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_routes_total",
			Help: "Messages answered per route",
		},
		[]string{"page_id", "route"},
	)

	// RepliesTotal counts outbound Send API calls.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_sends_total",
			Help: "Outbound Send API calls by kind and status",
		},
		[]string{"kind", "status"},
	)

	// LLMDuration tracks completion call duration.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// PrunesTotal counts summarize-and-prune attempts.
	PrunesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_prunes_total",
			Help: "History summarize-and-prune attempts by status",
		},
		[]string{"status"},
	)

	// MessagesTotal tracks stored conversation turns.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total conversation turns stored",
		},
		[]string{"page_id", "role"},
	)

	// WorkerQueueDepth tracks events waiting for a worker.
	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Events waiting for a pipeline worker",
		},
	)

	// WorkerQueueRejected counts events rejected because the queue was full.
	WorkerQueueRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_queue_rejected_total",
			Help: "Events rejected because the worker queue was full",
		},
	)

	// NATSPublishTotal counts conversation events published to JetStream.
	NATSPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_total",
			Help: "Conversation events published to JetStream",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for one completion call.
func RecordLLM(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordSend records one outbound Send API call.
func RecordSend(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RepliesTotal.WithLabelValues(kind, status).Inc()
}
