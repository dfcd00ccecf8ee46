package scheduler

import (
	"testing"

	"gotest.tools/assert"

	"github.com/mfprior/mfsched/pkg/trial"
)

func TestHyperbandSingleSweep(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxSweeps: 1}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	// Bracket cohorts 9, 3, 1; each bracket races to the top rung.
	assert.Assert(t, shutdown)
	assert.Equal(t, 13, registry.Count())
	assert.Equal(t, 18, evals)

	// One winner per bracket.
	counts := statusCounts(registry)
	assert.Equal(t, 3, counts[trial.Done])
	assert.Equal(t, 10, counts[trial.Terminated])
}

func TestHyperbandResweeps(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxSweeps: 2}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	assert.Assert(t, shutdown)
	assert.Equal(t, 26, registry.Count())
	assert.Equal(t, 36, evals)
	counts := statusCounts(registry)
	assert.Equal(t, 6, counts[trial.Done])
}

func TestHyperbandBracketsRaceIndependently(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxSweeps: 1}, ladder)

	_, shutdown := runSim(t, method, ctx, lossByID, nil)
	assert.Assert(t, shutdown)

	// The most aggressive bracket samples first, so trial 0 wins it; the
	// rung-1 bracket owns trials 9..11 and trial 9 wins there; the top-rung
	// bracket's single trial 12 finishes untouched by racing.
	for _, id := range []trial.ID{0, 9, 12} {
		tr, err := registry.Get(id)
		assert.NilError(t, err)
		assert.Equal(t, trial.Done, tr.Status, "trial %d", id)
	}
}

func TestHyperbandSurvivesFailures(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxSweeps: 1}, ladder)

	failEvens := func(id trial.ID, fid float64) bool { return id%2 == 0 && fid == 1 }
	_, shutdown := runSim(t, method, ctx, lossByID, failEvens)

	assert.Assert(t, shutdown)
	for _, tr := range registry.Query(nil) {
		assert.Assert(t, tr.Status.Terminal(), "trial %d left in %s", tr.ID, tr.Status)
	}
}

func TestHyperbandMaxTrialsCapsSampling(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxTrials: 5}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	// The cap shrinks the sweep to a single five-trial bracket, and no second
	// sweep starts even though the sweep count is unbounded.
	assert.Assert(t, shutdown)
	assert.Equal(t, 5, registry.Count())
	assert.Equal(t, 7, evals)
	counts := statusCounts(registry)
	assert.Equal(t, 1, counts[trial.Done])
	assert.Equal(t, 4, counts[trial.Terminated])
}

func TestHyperbandProgressBeforeStart(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	method := newHyperbandSearch(HyperbandConfig{}, ladder)
	assert.Equal(t, 0.0, method.progress())
}

func TestHyperbandProgress(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newHyperbandSearch(HyperbandConfig{MaxSweeps: 1}, ladder)

	_, _ = runSim(t, method, ctx, lossByID, nil)
	assert.Equal(t, 1.0, method.progress())
}
