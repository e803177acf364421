package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/consultpro/agents/pkg/reports"
	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/telemetry"
)

var ErrEmptyMessage = errors.New("message is required")

// Auditor records one exchange. Failures are reported but never fatal to the
// caller.
type Auditor interface {
	Log(ctx context.Context, agentType, message, response string, metadata any) error
}

type ChatReply struct {
	Response  string `json:"response"`
	AgentType string `json:"agent_type"`
}

// ChatRouter answers free-form chat by picking a report agent, either the one
// the caller named or the one the chat keyword rules select.
type ChatRouter struct {
	producer reports.Producer
	audit    Auditor
	logger   *slog.Logger
	route    func(string) skills.Capability
}

func NewChatRouter(producer reports.Producer, auditLog Auditor, logger *slog.Logger) *ChatRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatRouter{
		producer: producer,
		audit:    auditLog,
		logger:   logger,
		route:    skills.RouteChat,
	}
}

// resolve maps a requested agent type to a capability. Unknown names fall
// back to analytics.
func (cr *ChatRouter) resolve(message, agentType string) skills.Capability {
	agentType = strings.TrimSpace(agentType)
	if agentType == "" {
		return cr.route(message)
	}
	c, err := skills.ParseCapability(agentType)
	if err != nil {
		cr.logger.Debug("unknown agent type, using analytics", slog.String("agent_type", agentType))
		return skills.Analytics
	}
	return c
}

func (cr *ChatRouter) Handle(ctx context.Context, message, agentType string) (ChatReply, error) {
	if message == "" {
		return ChatReply{}, ErrEmptyMessage
	}

	capability := cr.resolve(message, agentType)
	response, err := cr.producer.Produce(ctx, capability, message)
	if err != nil {
		telemetry.Metrics.ChatRequestsTotal.WithLabelValues(string(capability), "error").Inc()
		return ChatReply{}, fmt.Errorf("gateway: %s agent: %w", capability, err)
	}
	telemetry.Metrics.ChatRequestsTotal.WithLabelValues(string(capability), "ok").Inc()

	cr.record(ctx, string(capability), message, response)
	return ChatReply{Response: response, AgentType: string(capability)}, nil
}

func (cr *ChatRouter) record(ctx context.Context, agentType, message, response string) {
	if cr.audit == nil {
		return
	}
	if err := cr.audit.Log(ctx, agentType, message, response, nil); err != nil {
		telemetry.Metrics.AuditFailures.WithLabelValues("chat").Inc()
		telemetry.LoggerFor(ctx, cr.logger).Debug("audit write failed",
			slog.String("agent_type", agentType),
			slog.String("err", err.Error()),
		)
	}
}
