package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrNoHandler       = errors.New("no handler registered")
	ErrDuplicateJob    = errors.New("duplicate job in flight")
	ErrQueueFull       = errors.New("job queue is full")
	ErrQueueClosed     = errors.New("job queue is closed")
	ErrTerminalStatus  = errors.New("status record is terminal")
	ErrInternal        = errors.New("internal error")
)

// Failure classification carried in JobResult.ErrorType and JobAttempt.ExceptionType.
const (
	FailureNoHandler    = "no_handler"
	FailurePayload      = "payload_invalid"
	FailurePrecondition = "precondition_failed"
	FailureTransient    = "transient_handler_failure"
	FailurePermanent    = "permanent_handler_failure"
	FailureTimeout      = "timeout"
	FailureCancelled    = "cancelled"
	FailurePanic        = "handler_panic"
)
