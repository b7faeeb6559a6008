package domain

import (
	"context"
	"fmt"
	"time"
)

// TaskStatus tracks the upstream agent task that jobs work against.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPlanning  TaskStatus = "planning"
	TaskPlanReady TaskStatus = "plan_ready"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentTask is the upstream record a webhook event creates or updates.
// Its ID is the task identity string, e.g. "owner/repo/issues/42", which
// also anchors job idempotency keys.
type AgentTask struct {
	ID              string
	InstallationID  int64
	RepositoryOwner string
	RepositoryName  string
	IssueNumber     int
	Plan            []byte
	Status          TaskStatus
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// TaskIdentity derives the canonical task id from its coordinates.
func TaskIdentity(owner, repo string, issue int) string {
	return fmt.Sprintf("%s/%s/issues/%d", owner, repo, issue)
}

// TaskRepository is the port for the upstream task store.
//
//go:generate mockery --name=TaskRepository --with-expecter --filename=task_repository_mock.go
type TaskRepository interface {
	// Upsert creates the task or refreshes its mutable fields, keyed by ID.
	Upsert(ctx context.Context, t AgentTask) error
	Get(ctx context.Context, id string) (AgentTask, error)
	// UpdateStatus transitions the task; plan may be nil to leave the stored
	// plan untouched.
	UpdateStatus(ctx context.Context, id string, status TaskStatus, plan []byte) error
}
