// Package handlers provides the built-in job handlers that advance an agent
// task through its lifecycle: plan generation and plan execution.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

// Planner produces an execution plan for a task. The default implementation
// is deterministic; LLM-backed planners plug in behind this interface.
type Planner interface {
	Plan(ctx context.Context, task domain.AgentTask, issueTitle, issueBody string) ([]byte, error)
}

// StaticPlanner derives a minimal plan from the issue text without calling
// any external model.
type StaticPlanner struct{}

type planDocument struct {
	PlanID      string   `json:"planId"`
	TaskID      string   `json:"taskId"`
	Summary     string   `json:"summary"`
	Steps       []string `json:"steps"`
	GeneratedAt string   `json:"generatedAt"`
}

// Plan implements Planner.
func (StaticPlanner) Plan(_ context.Context, task domain.AgentTask, issueTitle, _ string) ([]byte, error) {
	doc := planDocument{
		PlanID:  uuid.NewString(),
		TaskID:  task.ID,
		Summary: issueTitle,
		Steps: []string{
			"clone repository " + task.RepositoryOwner + "/" + task.RepositoryName,
			fmt.Sprintf("inspect issue #%d", task.IssueNumber),
			"prepare changes",
			"open pull request",
		},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return json.Marshal(doc)
}

// GeneratePlanHandler turns a pending task into a ready plan and chains the
// ExecutePlan job.
type GeneratePlanHandler struct {
	Tasks      domain.TaskRepository
	Planner    Planner
	Dedup      *usecase.Deduper
	Dispatcher *usecase.Dispatcher
	Audit      usecase.Auditor
	Retry      domain.RetryPolicy

	validate *validator.Validate
}

// NewGeneratePlanHandler constructs a GeneratePlanHandler. A nil planner
// falls back to the static one.
func NewGeneratePlanHandler(tasks domain.TaskRepository, planner Planner, dedup *usecase.Deduper, disp *usecase.Dispatcher, audit usecase.Auditor, retry domain.RetryPolicy) *GeneratePlanHandler {
	if planner == nil {
		planner = StaticPlanner{}
	}
	if audit == nil {
		audit = usecase.NopAuditor{}
	}
	return &GeneratePlanHandler{
		Tasks:      tasks,
		Planner:    planner,
		Dedup:      dedup,
		Dispatcher: disp,
		Audit:      audit,
		Retry:      retry,
		validate:   validator.New(),
	}
}

// Type implements domain.Handler.
func (h *GeneratePlanHandler) Type() string { return "GeneratePlan" }

// Execute implements domain.Handler.
func (h *GeneratePlanHandler) Execute(ctx context.Context, job *domain.Job) domain.JobResult {
	var payload usecase.PlanPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return domain.Fail(fmt.Sprintf("decode payload: %v", err), false, domain.FailurePayload)
	}
	if err := h.validate.Struct(payload); err != nil {
		return domain.Fail(fmt.Sprintf("invalid payload: %v", err), false, domain.FailurePayload)
	}
	lg := observability.LoggerFromContext(ctx).With("task_id", payload.TaskID)

	task, err := h.Tasks.Get(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Fail(fmt.Sprintf("task %s not found", payload.TaskID), false, domain.FailurePrecondition)
		}
		return domain.Fail(fmt.Sprintf("load task: %v", err), true, domain.FailureTransient)
	}

	if err := h.Tasks.UpdateStatus(ctx, task.ID, domain.TaskPlanning, nil); err != nil {
		return domain.Fail(fmt.Sprintf("mark planning: %v", err), true, domain.FailureTransient)
	}
	h.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditTaskStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "TaskPlanning",
		Target:        task.ID,
		Result:        "success",
	})

	start := time.Now()
	plan, err := h.Planner.Plan(ctx, task, payload.IssueTitle, payload.IssueBody)
	if err != nil {
		h.Audit.Emit(ctx, domain.AuditEvent{
			EventType:     domain.AuditPlanGeneration,
			CorrelationID: job.CorrelationID(),
			Description:   "PlanGenerationFailed",
			Target:        task.ID,
			Result:        "failure",
			ErrorMessage:  err.Error(),
		})
		return domain.Fail(fmt.Sprintf("generate plan: %v", err), true, domain.FailureTransient)
	}
	if err := h.Tasks.UpdateStatus(ctx, task.ID, domain.TaskPlanReady, plan); err != nil {
		return domain.Fail(fmt.Sprintf("store plan: %v", err), true, domain.FailureTransient)
	}
	h.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditPlanGeneration,
		CorrelationID: job.CorrelationID(),
		Description:   "PlanGenerated",
		Target:        task.ID,
		Result:        "success",
		DurationMs:    time.Since(start).Milliseconds(),
	})
	lg.Info("plan generated", "plan_bytes", len(plan))

	execJobID, err := h.chainExecution(ctx, job, task.ID)
	if err != nil {
		return domain.Fail(err.Error(), true, domain.FailureTransient)
	}
	return domain.SucceedWith(map[string]string{
		"taskId":    task.ID,
		"planBytes": fmt.Sprint(len(plan)),
		"execJobId": execJobID,
	})
}

// chainExecution dispatches the follow-up ExecutePlan job carrying this
// job's id as parent. A duplicate reservation means an execution is already
// in flight, which is success from this handler's point of view.
func (h *GeneratePlanHandler) chainExecution(ctx context.Context, parent *domain.Job, taskID string) (string, error) {
	payload, err := json.Marshal(ExecutePayload{TaskID: taskID})
	if err != nil {
		return "", fmt.Errorf("marshal execute payload: %w", err)
	}
	execJob := &domain.Job{
		ID:             uuid.NewString(),
		Type:           "ExecutePlan",
		Payload:        payload,
		Priority:       parent.Priority,
		MaxRetries:     h.Retry.MaxRetries,
		IdempotencyKey: "ExecutePlan:" + taskID,
		Metadata: map[string]string{
			domain.MetaSource:        parent.Source(),
			domain.MetaParentJobID:   parent.ID,
			domain.MetaCorrelationID: parent.CorrelationID(),
		},
		CreatedAt: time.Now().UTC(),
	}
	holder, reserved := h.Dedup.TryReserve(execJob.IdempotencyKey, execJob.ID)
	if !reserved {
		observability.LoggerFromContext(ctx).Info("execution already in flight",
			"task_id", taskID, "in_flight_job_id", holder)
		return holder, nil
	}
	if !h.Dispatcher.Dispatch(ctx, execJob) {
		h.Dedup.Release(execJob.ID)
		return "", fmt.Errorf("dispatch execution job for task %s", taskID)
	}
	return execJob.ID, nil
}
