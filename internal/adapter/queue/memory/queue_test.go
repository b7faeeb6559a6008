package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

func job(id string, priority int) *domain.Job {
	return &domain.Job{ID: id, Type: "t", Priority: priority}
}

func TestQueue_FIFOWithoutPrioritization(t *testing.T) {
	q := New(0, false)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, job(fmt.Sprintf("j%d", i), i)))
	}
	for i := 0; i < 5; i++ {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("j%d", i), j.ID, "priority ignored when prioritization is off")
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PriorityWithinWindow(t *testing.T) {
	q := New(0, true)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job("low-1", 1)))
	require.NoError(t, q.Enqueue(ctx, job("high", 9)))
	require.NoError(t, q.Enqueue(ctx, job("low-2", 1)))

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "high", j.ID)

	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "low-1", j.ID, "equal priorities keep arrival order")
}

func TestQueue_PriorityTieBreakIsFIFO(t *testing.T) {
	q := New(0, true)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, job(fmt.Sprintf("same-%d", i), 5)))
	}
	for i := 0; i < 4; i++ {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("same-%d", i), j.ID)
	}
}

func TestQueue_PriorityBeyondWindowWaits(t *testing.T) {
	q := New(0, true)
	ctx := context.Background()
	// Fill the whole peek window with low priority work, then add an urgent
	// job just past it. The urgent job must not starve the window.
	for i := 0; i < peekWindow; i++ {
		require.NoError(t, q.Enqueue(ctx, job(fmt.Sprintf("low-%d", i), 1)))
	}
	require.NoError(t, q.Enqueue(ctx, job("urgent", 10)))

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "low-0", j.ID, "job outside the window is not visible yet")

	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "urgent", j.ID, "window slides after a dequeue")
}

func TestQueue_BoundedEnqueueBlocksUntilSpace(t *testing.T) {
	q := New(1, false)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job("a", 0)))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Enqueue(ctx, job("b", 0))
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("enqueue on a full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", j.ID)

	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after space freed")
	}
}

func TestQueue_BoundedEnqueueHonorsContext(t *testing.T) {
	q := New(1, false)
	require.NoError(t, q.Enqueue(context.Background(), job("a", 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, job("b", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQueueFull))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DequeueBlocksAndHonorsContext(t *testing.T) {
	q := New(0, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueue_CloseRejectsEnqueueAndDrains(t *testing.T) {
	q := New(0, false)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job("a", 0)))
	q.Close()
	q.Close() // idempotent

	err := q.Enqueue(ctx, job("b", 0))
	assert.True(t, errors.Is(err, domain.ErrQueueClosed))

	j, err := q.Dequeue(ctx)
	require.NoError(t, err, "backlog drains after close")
	assert.Equal(t, "a", j.ID)

	_, err = q.Dequeue(ctx)
	assert.True(t, errors.Is(err, domain.ErrQueueClosed))
}

func TestQueue_CloseWakesBlockedCallers(t *testing.T) {
	q := New(1, false)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job("a", 0)))

	results := make(chan error, 2)
	go func() {
		results <- q.Enqueue(ctx, job("b", 0))
	}()
	empty := New(0, false)
	go func() {
		_, err := empty.Dequeue(ctx)
		results <- err
	}()
	time.Sleep(20 * time.Millisecond)

	q.Close()
	empty.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			assert.True(t, errors.Is(err, domain.ErrQueueClosed))
		case <-time.After(time.Second):
			t.Fatal("blocked caller not woken by close")
		}
	}
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := New(4, false)
	ctx := context.Background()
	const producers, perProducer = 8, 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(ctx, job(fmt.Sprintf("p%d-%d", p, i), 0))
			}
		}(p)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var cg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				j, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				if seen[j.ID] {
					t.Errorf("job %s dequeued twice", j.ID)
				}
				seen[j.ID] = true
				done := len(seen) == producers*perProducer
				mu.Unlock()
				if done {
					q.Close()
					return
				}
			}
		}()
	}

	wg.Wait()
	cg.Wait()
	assert.Len(t, seen, producers*perProducer)
}

func TestQueue_EnqueueStampsEnqueuedAt(t *testing.T) {
	q := New(0, false)
	j := job("a", 0)
	before := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), j))
	assert.False(t, j.EnqueuedAt.Before(before))
}

func TestQueue_NilJob(t *testing.T) {
	q := New(0, false)
	err := q.Enqueue(context.Background(), nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
