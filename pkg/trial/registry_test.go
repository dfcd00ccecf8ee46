package trial

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

func TestLifecycleHappyPath(t *testing.T) {
	r := NewRegistry()
	id := r.Create(searchspace.Config{"x": 0.5})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Pending, got.Status)

	for _, status := range []Status{Running, CompletedRung, Promoted, Running, CompletedRung, Done} {
		require.NoError(t, r.SetStatus(id, status))
	}
	got, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Done, got.Status)
	assert.True(t, got.Status.Terminal())
}

func TestInvalidTransitions(t *testing.T) {
	r := NewRegistry()
	id := r.Create(searchspace.Config{"x": 1})

	err := r.SetStatus(id, Done)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	// Terminal states permit nothing.
	require.NoError(t, r.SetStatus(id, Terminated))
	for _, status := range []Status{Pending, Running, CompletedRung, Promoted, Done} {
		err := r.SetStatus(id, status)
		require.Error(t, err, "terminated -> %s", status)
		assert.True(t, IsInvalidTransition(err))
	}
}

func TestDuplicateObservation(t *testing.T) {
	r := NewRegistry()
	id := r.Create(searchspace.Config{"x": 1})

	require.NoError(t, r.RecordResult(id, 3, 0.5))
	require.NoError(t, r.RecordResult(id, 9, 0.4))

	err := r.RecordResult(id, 3, 0.6)
	require.Error(t, err)
	assert.True(t, IsDuplicateObservation(err))

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Len(t, got.Observations, 2)
	loss, ok := got.LossAt(9)
	assert.True(t, ok)
	assert.Equal(t, 0.4, loss)
	assert.Equal(t, 9.0, got.HighestFidelity())
}

func TestUnknownTrial(t *testing.T) {
	r := NewRegistry()
	err := r.RecordResult(42, 1, 0.5)
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	id := r.Create(searchspace.Config{"x": 1})
	got, err := r.Get(id)
	require.NoError(t, err)
	got.Config["x"] = 99

	again, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Config["x"])
}

func TestQueryFilters(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		id := r.Create(searchspace.Config{"i": i})
		if i%2 == 0 {
			require.NoError(t, r.SetStatus(id, Running))
		}
	}
	running := r.Query(func(tr Trial) bool { return tr.Status == Running })
	assert.Len(t, running, 3)
	assert.Len(t, r.Query(nil), 5)
	assert.Equal(t, 5, r.Count())
}

func TestConcurrentCreates(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := r.Create(searchspace.Config{"w": fmt.Sprintf("worker-%d", i)})
			assert.NoError(t, r.SetStatus(id, Running))
			assert.NoError(t, r.RecordResult(id, 1, float64(i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, r.Count())
	ids := map[ID]bool{}
	for _, tr := range r.Query(nil) {
		ids[tr.ID] = true
	}
	assert.Len(t, ids, 32)
}

func TestBudget(t *testing.T) {
	b := NewBudget(10)
	assert.True(t, b.TryDebit(4))
	assert.True(t, b.TryDebit(6))
	assert.False(t, b.TryDebit(0.1))
	assert.Equal(t, 0.0, b.Remaining())
	assert.Equal(t, 10.0, b.Spent())
	assert.Equal(t, 10.0, b.Total())
}

func TestBudgetRefusesOversizedDebit(t *testing.T) {
	b := NewBudget(10)
	assert.False(t, b.TryDebit(11))
	// A refused debit leaves the budget untouched.
	assert.Equal(t, 10.0, b.Remaining())
	assert.True(t, b.TryDebit(10))
}
