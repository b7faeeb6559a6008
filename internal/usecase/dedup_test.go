package usecase

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduper_ReserveAndRelease(t *testing.T) {
	d := NewDeduper()

	holder, ok := d.TryReserve("k1", "job-a")
	require.True(t, ok)
	require.Equal(t, "job-a", holder)

	holder, ok = d.TryReserve("k1", "job-b")
	assert.False(t, ok)
	assert.Equal(t, "job-a", holder, "duplicate reports the in-flight holder")

	inFlight, ok := d.InFlight("k1")
	require.True(t, ok)
	assert.Equal(t, "job-a", inFlight)

	d.Release("job-a")
	_, ok = d.InFlight("k1")
	assert.False(t, ok)

	_, ok = d.TryReserve("k1", "job-b")
	assert.True(t, ok, "key reusable after release")
}

func TestDeduper_EmptyKeyDisablesDedup(t *testing.T) {
	d := NewDeduper()
	_, ok := d.TryReserve("", "job-a")
	require.True(t, ok)
	_, ok = d.TryReserve("", "job-b")
	require.True(t, ok)
}

func TestDeduper_RereserveMovesJobKey(t *testing.T) {
	d := NewDeduper()
	_, ok := d.TryReserve("k1", "job-a")
	require.True(t, ok)
	_, ok = d.TryReserve("k2", "job-a")
	require.True(t, ok)

	_, held := d.InFlight("k1")
	assert.False(t, held, "old key freed when the job takes a new one")
	holder, held := d.InFlight("k2")
	require.True(t, held)
	assert.Equal(t, "job-a", holder)
}

func TestDeduper_ReleaseUnknownJobIsNoop(t *testing.T) {
	d := NewDeduper()
	d.Release("never-reserved")
	_, ok := d.TryReserve("k", "job-a")
	assert.True(t, ok)
}

func TestDeduper_ConcurrentAtMostOneWinner(t *testing.T) {
	d := NewDeduper()
	const contenders = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := d.TryReserve("same-key", fmt.Sprintf("job-%d", i)); ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
