// Package domain defines the core entities and ports of the job
// orchestration core: jobs, status records, retry policies, audit events,
// and the interfaces implemented by queue and storage adapters.
package domain

import (
	"context"
	"time"
)

// Metadata keys with well-known meaning across the system.
const (
	MetaSource        = "source"
	MetaParentJobID   = "parentJobId"
	MetaCorrelationID = "correlationId"
)

// Job is a unit of deferrable work bound to a typed handler.
//
// A Job is immutable once enqueued except for RetryCount, RetryDelayMs and
// EnqueuedAt, which are rebuilt on every retry re-enqueue. The per-job
// cancellation scope is owned by the processor, not the job value.
type Job struct {
	ID         string
	Type       string
	Payload    []byte
	Priority   int
	MaxRetries int
	RetryCount int
	// RetryDelayMs is the scheduled backoff that preceded this enqueue;
	// zero for the initial attempt. It is distinct from queue wait, which
	// starts counting only once the delay has elapsed.
	RetryDelayMs   int64
	IdempotencyKey string
	Metadata       map[string]string
	CreatedAt      time.Time
	// EnqueuedAt is refreshed on every enqueue (initial and retry); queue
	// wait time for an attempt is measured against this value while
	// CreatedAt stays fixed for the job's lifetime.
	EnqueuedAt time.Time
}

// Meta returns the metadata value for key, or "" when absent.
func (j *Job) Meta(key string) string {
	if j.Metadata == nil {
		return ""
	}
	return j.Metadata[key]
}

// CorrelationID returns the correlation id carried in the job metadata.
func (j *Job) CorrelationID() string { return j.Meta(MetaCorrelationID) }

// Source returns the originating system recorded in the job metadata.
func (j *Job) Source() string { return j.Meta(MetaSource) }

// JobResult is the outcome sum type returned by handlers. Handlers never
// signal failure by panicking; the worker converts escaped panics into a
// retryable failure as a conservative default.
type JobResult struct {
	Succeeded bool
	Error     string
	Retryable bool
	// ErrorType is one of the Failure* constants, or a handler-defined tag.
	ErrorType string
	// Data is attached to the status record as resultData on success.
	Data map[string]string
}

// Succeed returns a successful result with no payload.
func Succeed() JobResult { return JobResult{Succeeded: true} }

// SucceedWith returns a successful result carrying resultData.
func SucceedWith(data map[string]string) JobResult {
	return JobResult{Succeeded: true, Data: data}
}

// Fail returns a failed result with the given message and retryability.
func Fail(msg string, retryable bool, errorType string) JobResult {
	return JobResult{Succeeded: false, Error: msg, Retryable: retryable, ErrorType: errorType}
}

// Handler processes jobs of a single type.
//
//go:generate mockery --name=Handler --with-expecter --filename=handler_mock.go
type Handler interface {
	// Type is the job type this handler serves.
	Type() string
	// Execute runs the job under the provided cancellation scope. It must
	// honor ctx cancellation within a bounded time.
	Execute(ctx context.Context, job *Job) JobResult
}

// Queue is the bounded, priority-aware job queue port.
//
//go:generate mockery --name=Queue --with-expecter --filename=queue_mock.go
type Queue interface {
	// Enqueue blocks while the queue is full until space frees or ctx fires.
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks until an item is available or ctx fires.
	Dequeue(ctx context.Context) (*Job, error)
	// Len reports the approximate number of queued jobs.
	Len() int
	// Close rejects further enqueues and wakes blocked dequeuers.
	Close()
}

// StatusStore is the upsert-only keyed store of JobStatusRecord.
//
//go:generate mockery --name=StatusStore --with-expecter --filename=status_store_mock.go
type StatusStore interface {
	Set(ctx context.Context, rec JobStatusRecord) error
	Get(ctx context.Context, jobID string) (JobStatusRecord, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context, f StatusFilter) ([]JobStatusRecord, error)
	Metrics(ctx context.Context) (JobMetrics, error)
}

// AuditStore persists audit events and enforces retention.
//
//go:generate mockery --name=AuditStore --with-expecter --filename=audit_store_mock.go
type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error
	// DeleteOlderThan removes events with timestamp before cutoff and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
