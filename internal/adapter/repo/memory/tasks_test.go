package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

func task(id string) domain.AgentTask {
	return domain.AgentTask{
		ID:              id,
		InstallationID:  1,
		RepositoryOwner: "octo",
		RepositoryName:  "repo",
		IssueNumber:     7,
		Status:          domain.TaskPending,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestTaskRepository_UpsertPreservesProgress(t *testing.T) {
	r := NewTaskRepository()
	ctx := context.Background()
	id := domain.TaskIdentity("octo", "repo", 7)

	require.NoError(t, r.Upsert(ctx, task(id)))
	require.NoError(t, r.UpdateStatus(ctx, id, domain.TaskPlanning, nil))

	// a re-received event must not reset the lifecycle
	require.NoError(t, r.Upsert(ctx, task(id)))
	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPlanning, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestTaskRepository_UpdateStatusTimestamps(t *testing.T) {
	r := NewTaskRepository()
	ctx := context.Background()
	id := domain.TaskIdentity("octo", "repo", 7)
	require.NoError(t, r.Upsert(ctx, task(id)))

	require.NoError(t, r.UpdateStatus(ctx, id, domain.TaskPlanning, nil))
	require.NoError(t, r.UpdateStatus(ctx, id, domain.TaskPlanReady, []byte(`{"steps":[]}`)))
	require.NoError(t, r.UpdateStatus(ctx, id, domain.TaskCompleted, nil))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.JSONEq(t, `{"steps":[]}`, string(got.Plan), "nil plan keeps the stored plan")
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))
}

func TestTaskRepository_Missing(t *testing.T) {
	r := NewTaskRepository()
	ctx := context.Background()
	_, err := r.Get(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	err = r.UpdateStatus(ctx, "nope", domain.TaskFailed, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	err = r.Upsert(ctx, domain.AgentTask{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestAuditStore_AppendAndRetention(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, domain.AuditEvent{
			EventType:   domain.AuditJobStateTransition,
			Timestamp:   now.Add(time.Duration(i-4) * 24 * time.Hour),
			Description: "JobEnqueued",
		}))
	}

	deleted, err := s.DeleteOlderThan(ctx, now.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Len(t, s.Events(), 2)
}
