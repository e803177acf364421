package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/reports"
	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/telemetry"
)

var (
	ErrEmptyMessage = errors.New("message with parts required")
	ErrNoTextPart   = errors.New("no text part found")
)

// Auditor records one exchange. Failures are reported but never fatal to the
// caller.
type Auditor interface {
	Log(ctx context.Context, agentType, message, response string, metadata any) error
}

type ServiceConfig struct {
	Store    TaskStore
	Producer reports.Producer
	Audit    Auditor
	Logger   *slog.Logger
	// Route picks the capability for a message. Defaults to skills.Route.
	Route func(text string) skills.Capability
}

// Service runs the task lifecycle: admit, route, produce, finish.
type Service struct {
	store    TaskStore
	producer reports.Producer
	audit    Auditor
	logger   *slog.Logger
	route    func(string) skills.Capability
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		cfg.Store = NewMemoryTaskStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Route == nil {
		cfg.Route = skills.Route
	}
	return &Service{
		store:    cfg.Store,
		producer: cfg.Producer,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		route:    cfg.Route,
		now:      time.Now,
	}
}

// Submit creates a task for msg and drives it to a terminal state. A
// producer failure yields a failed task, not an error. Errors are returned
// only for unusable input or a store that refuses the transition.
func (s *Service) Submit(ctx context.Context, id string, msg Message) (Task, error) {
	text, err := firstText(msg)
	if err != nil {
		return Task{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	skill := s.route(text)
	ctx, span := telemetry.StartSpan(ctx, "a2a.submit",
		telemetry.AttrTaskID.String(id),
		telemetry.AttrSkill.String(string(skill)),
	)
	defer span.End()
	logger := telemetry.LoggerFor(ctx, s.logger)

	task := Task{
		ID:        id,
		Status:    TaskStatus{State: TaskStateWorking},
		Artifacts: []Artifact{},
		CreatedAt: s.now(),
		Skill:     skill,
	}
	gen := s.store.Insert(task)

	state := TaskStateCompleted
	report, err := s.producer.Produce(ctx, skill, text)
	if err != nil {
		state = TaskStateFailed
		report = "Error: " + err.Error()
		span.RecordError(err)
		logger.Warn("task failed",
			slog.String("task_id", id),
			slog.String("skill", string(skill)),
			slog.String("err", err.Error()),
		)
	}

	artifact := TextArtifact(report)
	err = s.store.Finish(id, gen, state, artifact)
	switch {
	case errors.Is(err, ErrTaskSuperseded):
		// A later submission reused the id; its record stays, this caller
		// still gets its own result.
		logger.Debug("task superseded", slog.String("task_id", id))
	case err != nil:
		telemetry.SpanError(span, err)
		return Task{}, fmt.Errorf("a2a: finishing task %s: %w", id, err)
	}

	span.SetAttributes(telemetry.AttrTaskState.String(string(state)))
	telemetry.Metrics.TasksTotal.WithLabelValues(string(skill), string(state)).Inc()
	telemetry.Metrics.TaskDuration.WithLabelValues(string(skill)).Observe(s.now().Sub(task.CreatedAt).Seconds())

	s.record(ctx, id, text, report)

	task.Status.State = state
	task.Artifacts = []Artifact{artifact}
	return task, nil
}

func (s *Service) Get(id string) (Task, error) {
	return s.store.Get(id)
}

func (s *Service) List() []Task {
	return s.store.List()
}

func (s *Service) record(ctx context.Context, id, text, report string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, audit.AgentA2A, text, report, map[string]string{"task_id": id})
	if err != nil {
		telemetry.Metrics.AuditFailures.WithLabelValues(audit.AgentA2A).Inc()
		telemetry.LoggerFor(ctx, s.logger).Debug("audit write failed",
			slog.String("task_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// firstText returns the text of the first text part. An empty text part is
// still a text part.
func firstText(msg Message) (string, error) {
	if len(msg.Parts) == 0 {
		return "", ErrEmptyMessage
	}
	for _, p := range msg.Parts {
		if p.Type == "text" {
			return p.Text, nil
		}
	}
	return "", ErrNoTextPart
}
