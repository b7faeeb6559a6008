package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

// ExecutePayload is the ExecutePlan job payload.
type ExecutePayload struct {
	TaskID string `json:"taskId" validate:"required"`
}

// Executor applies a ready plan. The default implementation walks the plan
// steps without touching any external system; container- or VCS-backed
// executors plug in behind this interface.
type Executor interface {
	Run(ctx context.Context, task domain.AgentTask) error
}

// StaticExecutor validates the stored plan document and reports success.
type StaticExecutor struct{}

// Run implements Executor.
func (StaticExecutor) Run(_ context.Context, task domain.AgentTask) error {
	var doc planDocument
	if err := json.Unmarshal(task.Plan, &doc); err != nil {
		return fmt.Errorf("plan document malformed: %w", err)
	}
	if len(doc.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	return nil
}

// ExecutePlanHandler drives a plan_ready task through execution.
type ExecutePlanHandler struct {
	Tasks    domain.TaskRepository
	Executor Executor
	Audit    usecase.Auditor

	validate *validator.Validate
}

// NewExecutePlanHandler constructs an ExecutePlanHandler. A nil executor
// falls back to the static one.
func NewExecutePlanHandler(tasks domain.TaskRepository, executor Executor, audit usecase.Auditor) *ExecutePlanHandler {
	if executor == nil {
		executor = StaticExecutor{}
	}
	if audit == nil {
		audit = usecase.NopAuditor{}
	}
	return &ExecutePlanHandler{
		Tasks:    tasks,
		Executor: executor,
		Audit:    audit,
		validate: validator.New(),
	}
}

// Type implements domain.Handler.
func (h *ExecutePlanHandler) Type() string { return "ExecutePlan" }

// Execute implements domain.Handler.
func (h *ExecutePlanHandler) Execute(ctx context.Context, job *domain.Job) domain.JobResult {
	var payload ExecutePayload
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
	// Executing and completed are acceptable on retry; anything earlier
	// means the plan never became ready.
	if task.Status != domain.TaskPlanReady && task.Status != domain.TaskExecuting {
		return domain.Fail(fmt.Sprintf("task %s is %s, expected %s", task.ID, task.Status, domain.TaskPlanReady), false, domain.FailurePrecondition)
	}

	if err := h.Tasks.UpdateStatus(ctx, task.ID, domain.TaskExecuting, nil); err != nil {
		return domain.Fail(fmt.Sprintf("mark executing: %v", err), true, domain.FailureTransient)
	}
	h.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditTaskStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "TaskExecuting",
		Target:        task.ID,
		Result:        "success",
	})

	start := time.Now()
	if err := h.Executor.Run(ctx, task); err != nil {
		h.Audit.Emit(ctx, domain.AuditEvent{
			EventType:     domain.AuditPlanExecution,
			CorrelationID: job.CorrelationID(),
			Description:   "PlanExecutionFailed",
			Target:        task.ID,
			Result:        "failure",
			DurationMs:    time.Since(start).Milliseconds(),
			ErrorMessage:  err.Error(),
		})
		// Exhausted retries will leave the task stuck in executing unless we
		// fail it on the last attempt.
		if job.RetryCount >= job.MaxRetries {
			if uerr := h.Tasks.UpdateStatus(ctx, task.ID, domain.TaskFailed, nil); uerr != nil {
				lg.Error("failed marking task failed", "error", uerr)
			}
		}
		return domain.Fail(fmt.Sprintf("execute plan: %v", err), true, domain.FailureTransient)
	}

	if err := h.Tasks.UpdateStatus(ctx, task.ID, domain.TaskCompleted, nil); err != nil {
		return domain.Fail(fmt.Sprintf("mark completed: %v", err), true, domain.FailureTransient)
	}
	h.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditPlanExecution,
		CorrelationID: job.CorrelationID(),
		Description:   "PlanExecuted",
		Target:        task.ID,
		Result:        "success",
		DurationMs:    time.Since(start).Milliseconds(),
	})
	lg.Info("plan executed", "duration_ms", time.Since(start).Milliseconds())
	return domain.SucceedWith(map[string]string{"taskId": task.ID})
}
