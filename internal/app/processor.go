// Package app wires the long-running pieces of the service: the background
// job processor and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	adapterobs "github.com/fairyhunter13/agent-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

// Processor executes queued jobs under a concurrency ceiling. One dequeue
// loop feeds per-job worker goroutines gated by a weighted semaphore; each
// job runs under its own cancellation scope registered with the dispatcher
// so operators can cancel in-flight work.
type Processor struct {
	Queue      domain.Queue
	Statuses   domain.StatusStore
	Dispatcher *usecase.Dispatcher
	Dedup      *usecase.Deduper
	Audit      usecase.Auditor
	Retry      domain.RetryPolicy
	// Timeouts maps job type to a per-attempt deadline; absent or zero means
	// the attempt runs until it returns or is cancelled.
	Timeouts        map[string]time.Duration
	MaxConcurrency  int
	ShutdownTimeout time.Duration

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// jobCtx parents every per-job scope; cancelling it is the hard-stop.
	jobCtx     context.Context
	jobCancel  context.CancelFunc
	loopCtx    context.Context
	loopCancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewProcessor constructs a Processor. Start must be called before jobs run.
func NewProcessor(q domain.Queue, st domain.StatusStore, disp *usecase.Dispatcher, dedup *usecase.Deduper, audit usecase.Auditor, retry domain.RetryPolicy, timeouts map[string]time.Duration, maxConcurrency int, shutdownTimeout time.Duration) *Processor {
	if audit == nil {
		audit = usecase.NopAuditor{}
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Processor{
		Queue:           q,
		Statuses:        st,
		Dispatcher:      disp,
		Dedup:           dedup,
		Audit:           audit,
		Retry:           retry,
		Timeouts:        timeouts,
		MaxConcurrency:  maxConcurrency,
		ShutdownTimeout: shutdownTimeout,
		sem:             semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Start launches the dequeue loop. Idempotent.
func (p *Processor) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.jobCtx, p.jobCancel = context.WithCancel(context.WithoutCancel(ctx))
		p.loopCtx, p.loopCancel = context.WithCancel(ctx)
		p.wg.Add(1)
		go p.run()
	})
}

// Stop drains gracefully: the dequeue loop ends, in-flight jobs get up to
// ShutdownTimeout to finish, then their scopes are cancelled and the
// remaining workers are awaited. Idempotent.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.loopCancel()
		p.Queue.Close()

		finished := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(p.ShutdownTimeout):
			observability.LoggerFromContext(context.Background()).Warn("shutdown timeout reached, cancelling in-flight jobs",
				"timeout", p.ShutdownTimeout.String())
			p.jobCancel()
			<-finished
		}
		p.jobCancel()
	})
}

func (p *Processor) run() {
	defer p.wg.Done()
	for {
		if err := p.sem.Acquire(p.loopCtx, 1); err != nil {
			return
		}
		job, err := p.Queue.Dequeue(p.loopCtx)
		if err != nil {
			p.sem.Release(1)
			if errors.Is(err, domain.ErrQueueClosed) || p.loopCtx.Err() != nil {
				return
			}
			continue
		}
		adapterobs.QueueDepth.Set(float64(p.Queue.Len()))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.process(job)
		}()
	}
}

// process runs a single attempt of a job and routes its outcome.
func (p *Processor) process(job *domain.Job) {
	ctx, cancel := context.WithCancel(p.jobCtx)
	defer cancel()
	if timeout := p.Timeouts[job.Type]; timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	p.Dispatcher.RegisterCancel(job.ID, cancel)
	defer p.Dispatcher.UnregisterCancel(job.ID)

	ctx = observability.ContextWithCorrelationID(ctx, job.CorrelationID())
	lg := observability.LoggerFromContext(ctx).With("job_id", job.ID, "job_type", job.Type)
	ctx = observability.ContextWithLogger(ctx, lg)

	sctx, span := otel.Tracer("app.processor").Start(ctx, "processor.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.Type),
		attribute.Int("job.retry_count", job.RetryCount),
	)
	ctx = sctx

	rec := p.loadRecord(ctx, job)
	started := time.Now().UTC()
	queueWait := started.Sub(job.EnqueuedAt)
	if job.EnqueuedAt.IsZero() {
		queueWait = 0
	}
	waitMs := queueWait.Milliseconds()

	rec.Status = domain.StatusProcessing
	rec.StartedAt = &started
	rec.QueueWaitTimeMs = &waitMs
	p.setStatus(ctx, rec)
	adapterobs.StartProcessingJob(job.Type)
	lg.Info("job processing", "attempt", len(rec.Attempts)+1, "queue_wait_ms", waitMs)

	result := p.invoke(ctx, job)
	completed := time.Now().UTC()
	duration := completed.Sub(started)
	adapterobs.ObserveJobTimings(job.Type, queueWait, duration)

	// Cancellation and deadline win over whatever the handler returned.
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		result = domain.Fail("job cancelled", false, domain.FailureCancelled)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		// a deadline overrun is terminal, never retried
		result = domain.Fail(fmt.Sprintf("handler exceeded %s timeout", p.Timeouts[job.Type]), false, domain.FailureTimeout)
	}

	attempt := domain.JobAttempt{
		AttemptNumber:   len(rec.Attempts) + 1,
		StartedAt:       started,
		CompletedAt:     completed,
		Succeeded:       result.Succeeded,
		ErrorMessage:    result.Error,
		ExceptionType:   result.ErrorType,
		DurationMs:      duration.Milliseconds(),
		BackoffStrategy: string(p.Retry.Strategy),
	}
	if job.RetryCount > 0 {
		attempt.DelayBeforeAttemptMs = job.RetryDelayMs
	}
	rec.Attempts = append(rec.Attempts, attempt)
	rec.RetryCount = job.RetryCount

	switch {
	case result.Succeeded:
		p.complete(ctx, job, rec, result, completed, duration)
	case result.ErrorType == domain.FailureCancelled:
		p.finish(ctx, job, rec, domain.StatusCancelled, result, completed, duration)
		adapterobs.CancelJob(job.Type)
	case p.Retry.ShouldRetry(job.RetryCount, job.MaxRetries, result.Retryable):
		p.scheduleRetry(ctx, job, rec, result, completed)
	case p.Retry.Enabled && result.Retryable:
		// retries exhausted on a transient failure
		p.finish(ctx, job, rec, domain.StatusDeadLetter, result, completed, duration)
		adapterobs.DeadLetterJob(job.Type)
	default:
		p.finish(ctx, job, rec, domain.StatusFailed, result, completed, duration)
		adapterobs.FailJob(job.Type)
	}
}

// invoke runs the handler, converting an escaped panic into a retryable
// failure so one bad job can't take the worker down.
func (p *Processor) invoke(ctx context.Context, job *domain.Job) (result domain.JobResult) {
	handler, ok := p.Dispatcher.Resolve(job.Type)
	if !ok {
		return domain.Fail(fmt.Sprintf("no handler registered for type %q", job.Type), false, domain.FailureNoHandler)
	}
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Error("handler panicked",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result = domain.Fail(fmt.Sprintf("handler panic: %v", r), true, domain.FailurePanic)
		}
	}()
	return handler.Execute(ctx, job)
}

func (p *Processor) complete(ctx context.Context, job *domain.Job, rec domain.JobStatusRecord, result domain.JobResult, completed time.Time, duration time.Duration) {
	durMs := duration.Milliseconds()
	rec.Status = domain.StatusCompleted
	rec.CompletedAt = &completed
	rec.ProcessingDurationMs = &durMs
	rec.ResultData = result.Data
	rec.ErrorMessage = ""
	p.setStatus(ctx, rec)
	p.Dedup.Release(job.ID)
	adapterobs.CompleteJob(job.Type)
	p.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditJobStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "JobCompleted",
		Target:        job.ID,
		Result:        "success",
		DurationMs:    durMs,
	})
	observability.LoggerFromContext(ctx).Info("job completed", "duration_ms", durMs)
}

func (p *Processor) finish(ctx context.Context, job *domain.Job, rec domain.JobStatusRecord, status domain.JobStatus, result domain.JobResult, completed time.Time, duration time.Duration) {
	durMs := duration.Milliseconds()
	rec.Status = status
	rec.CompletedAt = &completed
	rec.ProcessingDurationMs = &durMs
	rec.ErrorMessage = result.Error
	p.setStatus(ctx, rec)
	p.Dedup.Release(job.ID)
	p.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditJobStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "Job" + exportStatus(status),
		Target:        job.ID,
		Result:        "failure",
		DurationMs:    durMs,
		ErrorMessage:  result.Error,
	})
	observability.LoggerFromContext(ctx).Warn("job finished without success",
		"status", string(status), "error", result.Error, "exception_type", result.ErrorType)
}

// scheduleRetry marks the record retried and re-enqueues the job after the
// backoff delay without holding a concurrency permit during the sleep.
func (p *Processor) scheduleRetry(ctx context.Context, job *domain.Job, rec domain.JobStatusRecord, result domain.JobResult, completed time.Time) {
	delay := p.Retry.Delay(job.RetryCount)
	rec.Status = domain.StatusRetried
	rec.LastRetryAt = &completed
	rec.RetryCount = job.RetryCount + 1
	rec.ErrorMessage = result.Error
	p.setStatus(ctx, rec)
	adapterobs.RetryJob(job.Type)
	p.Audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditJobStateTransition,
		CorrelationID: job.CorrelationID(),
		Description:   "JobRetryScheduled",
		Target:        job.ID,
		Result:        "retry",
		ErrorMessage:  result.Error,
		Data: map[string]string{
			"delayMs":    fmt.Sprint(delay.Milliseconds()),
			"retryCount": fmt.Sprint(job.RetryCount + 1),
		},
	})
	observability.LoggerFromContext(ctx).Info("job retry scheduled",
		"delay_ms", delay.Milliseconds(), "retry_count", job.RetryCount+1)

	retryJob := *job
	retryJob.RetryCount = job.RetryCount + 1
	retryJob.RetryDelayMs = delay.Milliseconds()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-p.jobCtx.Done():
			// shutting down hard; the retried record stays visible
			return
		}
		requeueCtx := observability.ContextWithCorrelationID(context.Background(), retryJob.CorrelationID())
		nextRec := domain.NewStatusRecord(&retryJob)
		nextRec.Attempts = rec.Attempts
		nextRec.LastRetryAt = rec.LastRetryAt
		nextRec.StartedAt = rec.StartedAt
		p.setStatus(requeueCtx, nextRec)
		if err := p.Queue.Enqueue(requeueCtx, &retryJob); err != nil {
			observability.LoggerFromContext(requeueCtx).Error("retry re-enqueue failed",
				"job_id", retryJob.ID, "error", err)
			failed := nextRec
			failed.Status = domain.StatusFailed
			failed.ErrorMessage = fmt.Sprintf("retry re-enqueue failed: %v", err)
			p.setStatus(requeueCtx, failed)
			p.Dedup.Release(retryJob.ID)
			adapterobs.FailJob(retryJob.Type)
			return
		}
		adapterobs.EnqueueJob(retryJob.Type)
	}()
}

// loadRecord fetches the current record, falling back to a fresh one so a
// lost status write can't stall the job.
func (p *Processor) loadRecord(ctx context.Context, job *domain.Job) domain.JobStatusRecord {
	rec, err := p.Statuses.Get(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			observability.LoggerFromContext(ctx).Warn("status record load failed, rebuilding", "error", err)
		}
		return domain.NewStatusRecord(job)
	}
	return rec
}

// setStatus writes the record, retrying transient store faults briefly. A
// terminal-status conflict is permanent and logged once; job execution never
// fails because of a status write.
func (p *Processor) setStatus(ctx context.Context, rec domain.JobStatusRecord) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	err := backoff.Retry(func() error {
		err := p.Statuses.Set(ctx, rec)
		if errors.Is(err, domain.ErrTerminalStatus) || errors.Is(err, domain.ErrInvalidArgument) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		observability.LoggerFromContext(ctx).Error("status write failed",
			"job_id", rec.JobID, "status", string(rec.Status), "error", err)
	}
}

// exportStatus renders a status for audit descriptions ("JobCompleted",
// "JobDeadLetter", ...).
func exportStatus(s domain.JobStatus) string {
	switch s {
	case domain.StatusFailed:
		return "Failed"
	case domain.StatusCancelled:
		return "Cancelled"
	case domain.StatusDeadLetter:
		return "DeadLetter"
	case domain.StatusCompleted:
		return "Completed"
	}
	return string(s)
}
