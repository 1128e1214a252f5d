package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice pipeline service.
// A nil *Metrics is a no-op sink, so components can run unobserved in tests.
type Metrics struct {
	// Turn metrics
	TurnsStarted   prometheus.Counter
	TurnsCompleted *prometheus.CounterVec
	TurnDuration   prometheus.Histogram

	// Stage metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	StageRetries  prometheus.Counter

	// Model registry metrics
	ModelLoads        *prometheus.CounterVec
	ModelLoadFailures *prometheus.CounterVec

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter

	// Audio metrics
	UploadBytes        prometheus.Histogram
	ReplyAudioDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_turns_started_total",
			Help: "Total number of conversational turns started",
		}),
		TurnsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_turns_completed_total",
			Help: "Total number of conversational turns completed",
		}, []string{"status"}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_turn_duration_seconds",
			Help:    "End-to-end duration of conversational turns",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_stage_failures_total",
			Help: "Total number of stage failures",
		}, []string{"stage", "reason"}),
		StageRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_stage_retries_total",
			Help: "Total number of same-stage retries after transient failures",
		}),

		ModelLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_model_loads_total",
			Help: "Total number of model capability loads",
		}, []string{"kind"}),
		ModelLoadFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_model_load_failures_total",
			Help: "Total number of failed model capability loads",
		}, []string{"kind"}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of active conversation sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_created_total",
			Help: "Total number of conversation sessions created",
		}),

		UploadBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_upload_bytes",
			Help:    "Size of uploaded audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~16MB
		}),
		ReplyAudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_reply_audio_duration_seconds",
			Help:    "Duration of synthesized reply audio",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~1 minute
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordTurnStarted increments the turns started counter.
func (m *Metrics) RecordTurnStarted() {
	if m == nil {
		return
	}
	m.TurnsStarted.Inc()
}

// RecordTurnCompleted records a completed turn with its terminal status.
func (m *Metrics) RecordTurnCompleted(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnsCompleted.WithLabelValues(status).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordStageDuration records one stage invocation's duration.
func (m *Metrics) RecordStageDuration(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailure records a stage failure with its reason.
func (m *Metrics) RecordStageFailure(stage, reason string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage, reason).Inc()
}

// RecordStageRetry increments the retry counter.
func (m *Metrics) RecordStageRetry() {
	if m == nil {
		return
	}
	m.StageRetries.Inc()
}

// RecordModelLoad records a model capability load.
func (m *Metrics) RecordModelLoad(kind string) {
	if m == nil {
		return
	}
	m.ModelLoads.WithLabelValues(kind).Inc()
}

// RecordModelLoadFailure records a failed model capability load.
func (m *Metrics) RecordModelLoadFailure(kind string) {
	if m == nil {
		return
	}
	m.ModelLoadFailures.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the current session count.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordUpload records an uploaded payload size.
func (m *Metrics) RecordUpload(sizeBytes int) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(sizeBytes))
}

// RecordReplyAudio records the duration of synthesized reply audio.
func (m *Metrics) RecordReplyAudio(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ReplyAudioDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
