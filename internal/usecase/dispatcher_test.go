package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/domain/mocks"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

type stubHandler struct {
	typ string
	fn  func(ctx context.Context, job *domain.Job) domain.JobResult
}

func (h stubHandler) Type() string { return h.typ }
func (h stubHandler) Execute(ctx context.Context, job *domain.Job) domain.JobResult {
	if h.fn == nil {
		return domain.Succeed()
	}
	return h.fn(ctx, job)
}

type auditRecorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *auditRecorder) Emit(_ context.Context, ev domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) byDescription(desc string) []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range r.events {
		if ev.Description == desc {
			out = append(out, ev)
		}
	}
	return out
}

func TestDispatcher_DispatchHappyPath(t *testing.T) {
	q := mocks.NewMockQueue(t)
	st := mocks.NewMockStatusStore(t)
	audit := &auditRecorder{}
	d := usecase.NewDispatcher(q, st, audit)
	d.Register(stubHandler{typ: "GeneratePlan"})

	job := &domain.Job{ID: "j1", Type: "GeneratePlan"}
	st.On("Set", mock.Anything, mock.MatchedBy(func(rec domain.JobStatusRecord) bool {
		return rec.JobID == "j1" && rec.Status == domain.StatusQueued
	})).Return(nil).Once()
	q.On("Enqueue", mock.Anything, job).Return(nil).Once()

	require.True(t, d.Dispatch(context.Background(), job))
	require.Len(t, audit.byDescription("JobEnqueued"), 1)
}

func TestDispatcher_DispatchUnknownType(t *testing.T) {
	q := mocks.NewMockQueue(t)
	st := mocks.NewMockStatusStore(t)
	d := usecase.NewDispatcher(q, st, nil)

	ok := d.Dispatch(context.Background(), &domain.Job{ID: "j1", Type: "Nope"})
	assert.False(t, ok)
	st.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestDispatcher_DispatchNoRollbackOnEnqueueFailure(t *testing.T) {
	q := mocks.NewMockQueue(t)
	st := mocks.NewMockStatusStore(t)
	d := usecase.NewDispatcher(q, st, nil)
	d.Register(stubHandler{typ: "GeneratePlan"})

	job := &domain.Job{ID: "j1", Type: "GeneratePlan"}
	st.On("Set", mock.Anything, mock.Anything).Return(nil).Once()
	q.On("Enqueue", mock.Anything, job).Return(errors.New("queue full")).Once()

	assert.False(t, d.Dispatch(context.Background(), job))
	// queued record stays; no Delete issued
	st.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDispatcher_DispatchStatusWriteFailure(t *testing.T) {
	q := mocks.NewMockQueue(t)
	st := mocks.NewMockStatusStore(t)
	d := usecase.NewDispatcher(q, st, nil)
	d.Register(stubHandler{typ: "GeneratePlan"})

	st.On("Set", mock.Anything, mock.Anything).Return(errors.New("store down")).Once()
	assert.False(t, d.Dispatch(context.Background(), &domain.Job{ID: "j1", Type: "GeneratePlan"}))
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestDispatcher_DuplicateRegistrationIgnored(t *testing.T) {
	d := usecase.NewDispatcher(mocks.NewMockQueue(t), mocks.NewMockStatusStore(t), nil)
	first := stubHandler{typ: "GeneratePlan"}
	second := stubHandler{typ: "GeneratePlan", fn: func(context.Context, *domain.Job) domain.JobResult {
		return domain.Fail("should not run", false, domain.FailurePermanent)
	}}
	d.Register(first)
	d.Register(second)

	h, ok := d.Resolve("GeneratePlan")
	require.True(t, ok)
	res := h.Execute(context.Background(), &domain.Job{})
	assert.True(t, res.Succeeded, "first registration stays authoritative")
}

func TestDispatcher_CancelLifecycle(t *testing.T) {
	d := usecase.NewDispatcher(mocks.NewMockQueue(t), mocks.NewMockStatusStore(t), nil)

	assert.False(t, d.Cancel("unknown"))

	ctx, cancel := context.WithCancel(context.Background())
	d.RegisterCancel("j1", cancel)
	require.True(t, d.Cancel("j1"))
	assert.Error(t, ctx.Err())

	d.UnregisterCancel("j1")
	assert.False(t, d.Cancel("j1"))
}
