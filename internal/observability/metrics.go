package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jarvis_live_active_sessions",
		Help: "Number of active live voice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_live_sessions_total",
		Help: "Total number of live voice sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jarvis_live_session_duration_seconds",
		Help:    "Duration of live voice sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_live_status_transitions_total",
		Help: "Voice status transitions by target status",
	}, []string{"status"})

	turnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_live_turns_total",
		Help: "Total number of completed conversational turns",
	})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_live_interruptions_total",
		Help: "Total number of server-signalled interruptions",
	})

	// Tool metrics
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_tool_calls_total",
		Help: "Total number of tool calls by tool and outcome",
	}, []string{"tool", "status"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jarvis_tool_latency_seconds",
		Help:    "Tool execution latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"tool"})

	// Media metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	videoFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_video_frames_total",
		Help: "Total number of vision frames sent to the model",
	})

	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_audio_decode_errors_total",
		Help: "Total number of model audio chunks that failed to decode",
	})

	// Video generation metrics
	videoGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_video_generations_total",
		Help: "Total number of video generation jobs by outcome",
	}, []string{"status"})

	videoGenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jarvis_video_generation_latency_seconds",
		Help:    "Video generation wall time in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jarvis_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single live session
type Metrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// SessionID returns the session the tracker belongs to
func (m *Metrics) SessionID() string {
	return m.sessionID
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Repeated calls are ignored.
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStatus records a voice status transition
func (m *Metrics) RecordStatus(status string) {
	statusTransitions.WithLabelValues(status).Inc()
}

// RecordTurn records a completed turn
func (m *Metrics) RecordTurn() {
	turnsCompleted.Inc()
}

// RecordInterruption records a server interruption
func (m *Metrics) RecordInterruption() {
	interruptions.Inc()
}

// RecordToolCall records the outcome and latency of one tool call
func (m *Metrics) RecordToolCall(tool string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	toolCalls.WithLabelValues(tool, status).Inc()
	toolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordVideoFrame records one vision frame pushed to the model
func (m *Metrics) RecordVideoFrame() {
	videoFramesSent.Inc()
}

// RecordDecodeError records a model audio chunk that could not be decoded
func (m *Metrics) RecordDecodeError() {
	decodeErrors.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordVideoGeneration records the outcome of a video generation job
func RecordVideoGeneration(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	videoGenerations.WithLabelValues(status).Inc()
	videoGenerationLatency.Observe(elapsed.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
