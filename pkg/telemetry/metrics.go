package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	ToolCallsTotal    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	RPCErrorsTotal    *prometheus.CounterVec
	ChatRequestsTotal *prometheus.CounterVec
	StreamClients     *prometheus.GaugeVec
	AuditFailures     *prometheus.CounterVec
}{
	TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consultpro",
		Subsystem: "a2a",
		Name:      "tasks_total",
		Help:      "Total A2A tasks by routed skill and terminal state.",
	}, []string{"skill", "state"}),

	TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "consultpro",
		Subsystem: "a2a",
		Name:      "task_duration_seconds",
		Help:      "Time from task admission to terminal state.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"skill"}),

	ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consultpro",
		Subsystem: "mcp",
		Name:      "tool_calls_total",
		Help:      "Total MCP tool invocations by tool name and status.",
	}, []string{"tool", "status"}),

	ToolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "consultpro",
		Subsystem: "mcp",
		Name:      "tool_duration_seconds",
		Help:      "MCP tool execution duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"tool"}),

	RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consultpro",
		Name:      "jsonrpc_errors_total",
		Help:      "JSON-RPC error responses by surface and error code.",
	}, []string{"surface", "code"}),

	ChatRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consultpro",
		Name:      "chat_requests_total",
		Help:      "Total /agents/chat requests by agent type and status.",
	}, []string{"agent_type", "status"}),

	StreamClients: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "consultpro",
		Subsystem: "mcp",
		Name:      "stream_clients",
		Help:      "Currently connected MCP notification stream clients.",
	}, []string{"transport"}),

	AuditFailures: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consultpro",
		Name:      "audit_write_failures_total",
		Help:      "Audit writes that failed and were discarded.",
	}, []string{"source"}),
}
