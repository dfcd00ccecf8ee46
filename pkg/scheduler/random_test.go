package scheduler

import (
	"testing"

	"gotest.tools/assert"

	"github.com/mfprior/mfsched/pkg/trial"
)

func TestRandomSearchEvaluatesAtTopFidelity(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newRandomSearch(RandomConfig{MaxTrials: 5}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	assert.Equal(t, 5, evals)
	assert.Assert(t, shutdown)
	assert.Equal(t, 5, registry.Count())
	for _, tr := range registry.Query(nil) {
		assert.Equal(t, trial.Done, tr.Status)
		assert.Equal(t, 27.0, tr.HighestFidelity())
	}
}

func TestRandomSearchConcurrencyCap(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newRandomSearch(RandomConfig{MaxTrials: 5, MaxConcurrentTrials: 2}, ladder)

	ops, err := method.initialOperations(ctx)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(ops))
}

func TestRandomSearchToleratesFailures(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newRandomSearch(RandomConfig{MaxTrials: 5}, ladder)

	failSecond := func(id trial.ID, _ float64) bool { return id == 1 }
	evals, shutdown := runSim(t, method, ctx, lossByID, failSecond)

	assert.Equal(t, 5, evals)
	assert.Assert(t, shutdown)
	counts := statusCounts(registry)
	assert.Equal(t, 4, counts[trial.Done])
	assert.Equal(t, 1, counts[trial.Terminated])
}

func TestRandomSearchProgress(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newRandomSearch(RandomConfig{MaxTrials: 4}, ladder)

	assert.Equal(t, 0.0, method.progress())
	_, _ = runSim(t, method, ctx, lossByID, nil)
	assert.Equal(t, 1.0, method.progress())
}
