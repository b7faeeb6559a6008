package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// TaskRepo persists agent tasks in the agent_tasks table.
type TaskRepo struct{ Pool PgxPool }

// NewTaskRepo constructs a TaskRepo with the given pool.
func NewTaskRepo(p PgxPool) *TaskRepo { return &TaskRepo{Pool: p} }

// Upsert creates the task or refreshes its coordinates. Status, plan and
// progress timestamps of an existing task are left untouched so a replayed
// webhook cannot reset a task mid-flight.
func (r *TaskRepo) Upsert(ctx context.Context, t domain.AgentTask) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Upsert")
	defer span.End()
	if t.ID == "" {
		return fmt.Errorf("op=task.upsert: empty id: %w", domain.ErrInvalidArgument)
	}
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO agent_tasks (id, installation_id, owner, repo, issue_number, plan, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			installation_id=excluded.installation_id, owner=excluded.owner,
			repo=excluded.repo, issue_number=excluded.issue_number`
	_, err := r.Pool.Exec(ctx, q, t.ID, t.InstallationID, t.RepositoryOwner, t.RepositoryName,
		t.IssueNumber, t.Plan, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("op=task.upsert: %w", err)
	}
	return nil
}

// Get loads a task by id.
func (r *TaskRepo) Get(ctx context.Context, id string) (domain.AgentTask, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()
	q := `SELECT id, installation_id, owner, repo, issue_number, plan, status, created_at, started_at, completed_at
		FROM agent_tasks WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var t domain.AgentTask
	err := row.Scan(&t.ID, &t.InstallationID, &t.RepositoryOwner, &t.RepositoryName,
		&t.IssueNumber, &t.Plan, &t.Status, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentTask{}, fmt.Errorf("op=task.get: task %s: %w", id, domain.ErrNotFound)
		}
		return domain.AgentTask{}, fmt.Errorf("op=task.get: %w", err)
	}
	return t, nil
}

// UpdateStatus transitions the task. A nil plan keeps the stored plan;
// started_at is stamped on entering planning and completed_at on reaching a
// final task status, both only once.
func (r *TaskRepo) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, plan []byte) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.UpdateStatus")
	defer span.End()
	q := `UPDATE agent_tasks SET
			status=$2,
			plan=COALESCE($3, plan),
			started_at=CASE WHEN $2=$5 AND started_at IS NULL THEN $4 ELSE started_at END,
			completed_at=CASE WHEN $2 IN ($6,$7) AND completed_at IS NULL THEN $4 ELSE completed_at END
		WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, plan, time.Now().UTC(),
		domain.TaskPlanning, domain.TaskCompleted, domain.TaskFailed)
	if err != nil {
		return fmt.Errorf("op=task.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=task.update_status: task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
