// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_tasks"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionOutcomes  *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SessionRetries   prometheus.Counter
	PermissionDenied prometheus.Counter

	// Recognition metrics
	RecognitionEvents *prometheus.CounterVec
	RecognitionErrors *prometheus.CounterVec
	AudioBytes        prometheus.Counter

	// Task pipeline metrics
	TasksCreated   prometheus.Counter
	TaskCandidates prometheus.Histogram
	StopLatency    prometheus.Histogram

	// Store metrics
	StoreOpsTotal  *prometheus.CounterVec
	StoreOpErrors  *prometheus.CounterVec
	StoreOpLatency *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	HTTPRequests *prometheus.HistogramVec
	RPCRequests  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently listening, retrying or stopping",
		}),
		SessionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Terminal session outcomes by notice kind",
		}, []string{"outcome"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from session start to returning idle",
			Buckets:   []float64{1, 2, 5, 10, 18, 30, 60, 120},
		}),
		SessionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_retries_total",
			Help:      "Automatic recognizer restarts after silence",
		}),
		PermissionDenied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denied_total",
			Help:      "Session starts refused for missing permission",
		}),

		RecognitionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_total",
			Help:      "Recognition events received",
		}, []string{"kind"}),
		RecognitionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Recognition error events by code",
		}, []string{"code"}),
		AudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes forwarded to recognizers",
		}),

		TasksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks persisted from voice sessions",
		}),
		TaskCandidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_candidates",
			Help:      "Task titles derived per transcript",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		StopLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stop_latency_seconds",
			Help:      "Time spent stopping the recognizer and persisting tasks",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		StoreOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Task store operations",
		}, []string{"backend", "op"}),
		StoreOpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Failed task store operations",
		}, []string{"backend", "op"}),
		StoreOpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_latency_seconds",
			Help:      "Task store operation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend", "op"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HTTPRequests: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RPCRequests: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request latency by method and code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a session entering LISTENING for the first time.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session returning to IDLE.
func (m *Metrics) RecordSessionEnd(outcome string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRetry records an automatic restart after silence.
func (m *Metrics) RecordRetry() {
	m.SessionRetries.Inc()
}

// RecordPermissionDenied records a refused start.
func (m *Metrics) RecordPermissionDenied() {
	m.PermissionDenied.Inc()
}

// RecordRecognitionEvent records an interim, result or error event.
func (m *Metrics) RecordRecognitionEvent(kind string) {
	m.RecognitionEvents.WithLabelValues(kind).Inc()
}

// RecordRecognitionError records a recognition error by code.
func (m *Metrics) RecordRecognitionError(code string) {
	m.RecognitionErrors.WithLabelValues(code).Inc()
}

// RecordAudioReceived records audio bytes forwarded to a recognizer.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytes.Add(float64(bytes))
}

// RecordTranscriptParsed records how many titles a transcript produced.
func (m *Metrics) RecordTranscriptParsed(titles int) {
	m.TaskCandidates.Observe(float64(titles))
}

// RecordTasksCreated records tasks persisted by a session.
func (m *Metrics) RecordTasksCreated(n int) {
	m.TasksCreated.Add(float64(n))
}

// RecordStopLatency records how long a stop took end to end.
func (m *Metrics) RecordStopLatency(seconds float64) {
	m.StopLatency.Observe(seconds)
}

// RecordStoreOp records a task store load or save.
func (m *Metrics) RecordStoreOp(backend, op string, err error, latencySeconds float64) {
	m.StoreOpsTotal.WithLabelValues(backend, op).Inc()
	m.StoreOpLatency.WithLabelValues(backend, op).Observe(latencySeconds)
	if err != nil {
		m.StoreOpErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Observe(latencySeconds)
}

// RecordRPC records a served gRPC call.
func (m *Metrics) RecordRPC(method, code string, latencySeconds float64) {
	m.RPCRequests.WithLabelValues(method, code).Observe(latencySeconds)
}
