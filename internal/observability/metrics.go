package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting world-runtime
// metrics: bus throughput, agent orchestration latency, tool execution, and
// approval decisions. Built on Prometheus, per the teacher's instrumentation
// style.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.MessagePublished("message")
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// EventsPublished counts bus events by channel (message|sse|tool|world|system|crud).
	EventsPublished *prometheus.CounterVec

	// BusHandlerErrors counts subscriber panics/errors caught by the bus wrapper.
	BusHandlerErrors *prometheus.CounterVec

	// PendingOperations gauges each world's in-flight agent orchestrations.
	// Labels: world_id
	PendingOperations *prometheus.GaugeVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider/model/status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption. Labels: provider, model, type (prompt|completion).
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations. Labels: tool_name, status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds. Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalDecisions counts approval outcomes. Labels: scope (once|session), decision (approve|deny).
	ApprovalDecisions *prometheus.CounterVec

	// TurnLimitReached counts how often an agent hits its per-turn call budget.
	TurnLimitReached *prometheus.CounterVec

	// StorageErrors counts storage operation failures. Labels: op.
	StorageErrors *prometheus.CounterVec
}

// NewMetrics constructs and registers the default metric collectors against
// the global Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer is like NewMetrics but registers against reg
// instead of the global registry — used by tests to avoid duplicate
// registration panics across test functions.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_events_published_total",
			Help: "Total bus events published, by channel.",
		}, []string{"channel"}),

		BusHandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_bus_handler_errors_total",
			Help: "Subscriber panics/errors caught by the bus wrapper, by channel.",
		}, []string{"channel"}),

		PendingOperations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentworld_pending_operations",
			Help: "Current in-flight agent orchestrations per world.",
		}, []string{"world_id"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentworld_llm_request_duration_seconds",
			Help:    "LLM provider call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_llm_requests_total",
			Help: "LLM provider calls, by provider/model/status.",
		}, []string{"provider", "model", "status"}),

		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_llm_tokens_total",
			Help: "LLM tokens consumed, by provider/model/type.",
		}, []string{"provider", "model", "type"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_tool_executions_total",
			Help: "Tool invocations, by tool name and status.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentworld_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		ApprovalDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_approval_decisions_total",
			Help: "Approval outcomes, by scope and decision.",
		}, []string{"scope", "decision"}),

		TurnLimitReached: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_turn_limit_reached_total",
			Help: "Times an agent hit its per-turn LLM call budget.",
		}, []string{"agent_id"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentworld_storage_errors_total",
			Help: "Storage operation failures, by operation.",
		}, []string{"op"}),
	}
}

// EventPublished records one event emitted on channel.
func (m *Metrics) EventPublished(channel string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(channel).Inc()
}

// BusHandlerError records one subscriber failure caught on channel.
func (m *Metrics) BusHandlerError(channel string) {
	if m == nil {
		return
	}
	m.BusHandlerErrors.WithLabelValues(channel).Inc()
}

// SetPendingOperations sets the current pending-operations gauge for a world.
func (m *Metrics) SetPendingOperations(worldID string, n int) {
	if m == nil {
		return
	}
	m.PendingOperations.WithLabelValues(worldID).Set(float64(n))
}

// RecordLLMRequest records one completed LLM call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool invocation outcome.
func (m *Metrics) RecordToolExecution(toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordApprovalDecision records one approval outcome.
func (m *Metrics) RecordApprovalDecision(scope, decision string) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(scope, decision).Inc()
}

// RecordTurnLimitReached records one turn-limit halt for agentID.
func (m *Metrics) RecordTurnLimitReached(agentID string) {
	if m == nil {
		return
	}
	m.TurnLimitReached.WithLabelValues(agentID).Inc()
}

// RecordStorageError records one storage operation failure.
func (m *Metrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}
