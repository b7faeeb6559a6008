package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	adapterobs "github.com/fairyhunter13/agent-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
)

// Auditor is the audit emission port used by services. The concrete logger
// lives in internal/audit; tests substitute a recorder.
type Auditor interface {
	Emit(ctx context.Context, ev domain.AuditEvent)
}

// NopAuditor discards events. Used where audit is optional.
type NopAuditor struct{}

// Emit implements Auditor.
func (NopAuditor) Emit(context.Context, domain.AuditEvent) {}

// Dispatcher owns the handler registry, hands accepted jobs to the queue,
// and tracks live cancellation scopes for in-flight jobs.
type Dispatcher struct {
	Queue    domain.Queue
	Statuses domain.StatusStore
	Audit    Auditor

	mu       sync.RWMutex
	handlers map[string]domain.Handler
	cancels  map[string]context.CancelFunc
}

// NewDispatcher constructs a Dispatcher with its dependencies.
func NewDispatcher(q domain.Queue, st domain.StatusStore, audit Auditor) *Dispatcher {
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Dispatcher{
		Queue:    q,
		Statuses: st,
		Audit:    audit,
		handlers: make(map[string]domain.Handler),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Register adds a handler for its job type. A second registration for the
// same type is logged and ignored; the first handler stays authoritative.
func (d *Dispatcher) Register(h domain.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[h.Type()]; exists {
		observability.LoggerFromContext(context.Background()).Warn("duplicate handler registration ignored",
			"job_type", h.Type())
		return
	}
	d.handlers[h.Type()] = h
}

// Resolve returns the handler for a job type.
func (d *Dispatcher) Resolve(jobType string) (domain.Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[jobType]
	return h, ok
}

// Dispatch records the job as queued and enqueues it. The status write
// happens first so the job is observable before it can possibly run; if the
// enqueue then fails the queued record is left in place for the operator to
// see (no rollback).
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.Job) bool {
	ctx, span := otel.Tracer("usecase.dispatcher").Start(ctx, "dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.type", job.Type))
	lg := observability.LoggerFromContext(ctx)

	if _, ok := d.Resolve(job.Type); !ok {
		lg.Error("dispatch rejected, no handler for type", "job_id", job.ID, "job_type", job.Type)
		return false
	}

	if err := d.Statuses.Set(ctx, domain.NewStatusRecord(job)); err != nil {
		lg.Error("dispatch failed writing queued status", "job_id", job.ID, "error", err)
		return false
	}
	if err := d.Queue.Enqueue(ctx, job); err != nil {
		lg.Error("dispatch failed enqueueing", "job_id", job.ID, "error", err)
		return false
	}

	adapterobs.EnqueueJob(job.Type)
	d.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditJobStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "JobEnqueued",
		Target:        job.ID,
		Result:        "success",
		Data:          map[string]string{"jobType": job.Type, "priority": fmt.Sprint(job.Priority)},
	})
	lg.Info("job dispatched", "job_id", job.ID, "job_type", job.Type, "priority", job.Priority)
	return true
}

// RegisterCancel publishes the cancellation scope for a job entering
// execution. Called by the processor.
func (d *Dispatcher) RegisterCancel(jobID string, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels[jobID] = cancel
}

// UnregisterCancel drops the scope once the job leaves execution.
func (d *Dispatcher) UnregisterCancel(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cancels, jobID)
}

// Cancel fires the cancellation scope of an in-flight job. Returns false
// when the job is not currently executing (queued-only jobs cannot be
// cancelled through this path).
func (d *Dispatcher) Cancel(jobID string) bool {
	d.mu.RLock()
	cancel, ok := d.cancels[jobID]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	cancel()
	return true
}
