package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
)

// IssueEvent is a pre-validated issue event from the webhook edge. Signature
// verification happened upstream; this layer only checks field shape.
type IssueEvent struct {
	Action          string `json:"action" validate:"required"`
	InstallationID  int64  `json:"installationId" validate:"required"`
	RepositoryOwner string `json:"repositoryOwner" validate:"required"`
	RepositoryName  string `json:"repositoryName" validate:"required"`
	IssueNumber     int    `json:"issueNumber" validate:"required,gt=0"`
	IssueTitle      string `json:"issueTitle"`
	IssueBody       string `json:"issueBody"`
	Priority        int    `json:"priority" validate:"gte=0,lte=10"`
}

// PlanPayload is the GeneratePlan job payload derived from an event.
type PlanPayload struct {
	TaskID         string `json:"taskId" validate:"required"`
	InstallationID int64  `json:"installationId" validate:"required"`
	Owner          string `json:"owner" validate:"required"`
	Repo           string `json:"repo" validate:"required"`
	IssueNumber    int    `json:"issueNumber" validate:"required,gt=0"`
	IssueTitle     string `json:"issueTitle"`
	IssueBody      string `json:"issueBody"`
}

// AcceptResult reports how an event was admitted.
type AcceptResult struct {
	JobID         string `json:"jobId"`
	TaskID        string `json:"taskId"`
	CorrelationID string `json:"correlationId"`
	// Duplicate is true when an in-flight job already covers the task; JobID
	// then names that job.
	Duplicate bool `json:"duplicate"`
}

// IngressService turns validated issue events into agent tasks and their
// initial GeneratePlan job.
type IngressService struct {
	Tasks      domain.TaskRepository
	Dedup      *Deduper
	Dispatcher *Dispatcher
	Audit      Auditor
	Retry      domain.RetryPolicy

	validate *validator.Validate
}

// NewIngressService constructs an IngressService.
func NewIngressService(tasks domain.TaskRepository, dedup *Deduper, disp *Dispatcher, audit Auditor, retry domain.RetryPolicy) *IngressService {
	if audit == nil {
		audit = NopAuditor{}
	}
	return &IngressService{
		Tasks:      tasks,
		Dedup:      dedup,
		Dispatcher: disp,
		Audit:      audit,
		Retry:      retry,
		validate:   validator.New(),
	}
}

// Accept validates the event, upserts the agent task, and dispatches the
// GeneratePlan job unless an identical one is already in flight.
func (s *IngressService) Accept(ctx context.Context, ev IssueEvent) (AcceptResult, error) {
	cctx, span := otel.Tracer("usecase.ingress").Start(ctx, "ingress.Accept")
	defer span.End()

	start := time.Now()
	if err := s.validate.Struct(ev); err != nil {
		s.Audit.Emit(cctx, domain.AuditEvent{
			EventType:    domain.AuditWebhookValidation,
			Description:  "EventRejected",
			Result:       "failure",
			ErrorMessage: err.Error(),
		})
		return AcceptResult{}, fmt.Errorf("op=ingress.Accept: %w: %w", domain.ErrInvalidArgument, err)
	}

	correlationID := uuid.NewString()
	cctx = observability.ContextWithCorrelationID(cctx, correlationID)
	taskID := domain.TaskIdentity(ev.RepositoryOwner, ev.RepositoryName, ev.IssueNumber)
	span.SetAttributes(attribute.String("task.id", taskID))
	lg := observability.LoggerFromContext(cctx)

	s.Audit.Emit(cctx, domain.AuditEvent{
		EventType:     domain.AuditWebhookReceived,
		CorrelationID: correlationID,
		Description:   "IssueEventAccepted",
		Initiator:     ev.RepositoryOwner,
		Target:        taskID,
		Result:        "success",
		Data:          map[string]string{"action": ev.Action},
	})

	task := domain.AgentTask{
		ID:              taskID,
		InstallationID:  ev.InstallationID,
		RepositoryOwner: ev.RepositoryOwner,
		RepositoryName:  ev.RepositoryName,
		IssueNumber:     ev.IssueNumber,
		Status:          domain.TaskPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Tasks.Upsert(cctx, task); err != nil {
		return AcceptResult{}, fmt.Errorf("op=ingress.Accept: upsert task: %w", err)
	}

	payload, err := json.Marshal(PlanPayload{
		TaskID:         taskID,
		InstallationID: ev.InstallationID,
		Owner:          ev.RepositoryOwner,
		Repo:           ev.RepositoryName,
		IssueNumber:    ev.IssueNumber,
		IssueTitle:     ev.IssueTitle,
		IssueBody:      ev.IssueBody,
	})
	if err != nil {
		return AcceptResult{}, fmt.Errorf("op=ingress.Accept: marshal payload: %w", err)
	}

	job := &domain.Job{
		ID:             uuid.NewString(),
		Type:           "GeneratePlan",
		Payload:        payload,
		Priority:       ev.Priority,
		MaxRetries:     s.Retry.MaxRetries,
		IdempotencyKey: "GeneratePlan:" + taskID,
		Metadata: map[string]string{
			domain.MetaSource:        "github_webhook",
			domain.MetaCorrelationID: correlationID,
		},
		CreatedAt: time.Now().UTC(),
	}

	holder, reserved := s.Dedup.TryReserve(job.IdempotencyKey, job.ID)
	if !reserved {
		s.Audit.Emit(cctx, domain.AuditEvent{
			EventType:     domain.AuditJobStateTransition,
			CorrelationID: correlationID,
			Description:   "DuplicateJobSkipped",
			Target:        taskID,
			Result:        "skipped",
			DurationMs:    time.Since(start).Milliseconds(),
			Data:          map[string]string{"inFlightJobId": holder},
		})
		lg.Info("duplicate event skipped", "task_id", taskID, "in_flight_job_id", holder)
		return AcceptResult{JobID: holder, TaskID: taskID, CorrelationID: correlationID, Duplicate: true}, nil
	}

	if !s.Dispatcher.Dispatch(cctx, job) {
		s.Dedup.Release(job.ID)
		return AcceptResult{}, fmt.Errorf("op=ingress.Accept: dispatch job %s: %w", job.ID, domain.ErrInternal)
	}
	lg.Info("event admitted", "task_id", taskID, "job_id", job.ID)
	return AcceptResult{JobID: job.ID, TaskID: taskID, CorrelationID: correlationID}, nil
}
