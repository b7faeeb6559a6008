package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// TaskRepository keeps agent tasks in a mutex-guarded map.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]domain.AgentTask
}

// NewTaskRepository constructs an empty TaskRepository.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[string]domain.AgentTask)}
}

// Upsert creates the task or refreshes its coordinates. An existing task
// keeps its status, plan, and timestamps; re-received events must not reset
// progress.
func (r *TaskRepository) Upsert(_ context.Context, t domain.AgentTask) error {
	if t.ID == "" {
		return fmt.Errorf("op=memory.TaskRepository.Upsert: empty id: %w", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.tasks[t.ID]; ok {
		prev.InstallationID = t.InstallationID
		prev.RepositoryOwner = t.RepositoryOwner
		prev.RepositoryName = t.RepositoryName
		prev.IssueNumber = t.IssueNumber
		r.tasks[t.ID] = prev
		return nil
	}
	r.tasks[t.ID] = t
	return nil
}

// Get returns the task by id.
func (r *TaskRepository) Get(_ context.Context, id string) (domain.AgentTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.AgentTask{}, fmt.Errorf("op=memory.TaskRepository.Get: task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// UpdateStatus transitions the task and stamps StartedAt/CompletedAt at the
// edges of the lifecycle. A nil plan leaves the stored plan untouched.
func (r *TaskRepository) UpdateStatus(_ context.Context, id string, status domain.TaskStatus, plan []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("op=memory.TaskRepository.UpdateStatus: task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = status
	if plan != nil {
		t.Plan = append([]byte(nil), plan...)
	}
	now := time.Now().UTC()
	switch status {
	case domain.TaskPlanning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case domain.TaskCompleted, domain.TaskFailed:
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
	r.tasks[id] = t
	return nil
}
