package scheduler

import (
	"testing"

	"gotest.tools/assert"

	"github.com/mfprior/mfsched/pkg/trial"
)

func TestSyncHalvingRacesFullBracket(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	// 27 trials at rung 1, 9 at 3, 3 at 9, 1 at 27.
	assert.Equal(t, 40, evals)
	assert.Assert(t, shutdown)
	assert.Equal(t, 27, registry.Count())

	counts := statusCounts(registry)
	assert.Equal(t, 1, counts[trial.Done])
	assert.Equal(t, 26, counts[trial.Terminated])

	// The best trial survives every rung and carries one observation per
	// fidelity it raced at.
	winner, err := registry.Get(0)
	assert.NilError(t, err)
	assert.Equal(t, trial.Done, winner.Status)
	assert.Equal(t, 4, len(winner.Observations))
	assert.Equal(t, 27.0, winner.HighestFidelity())
}

func TestSyncHalvingPromotionQuota(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{InitialTrials: 9}, ladder)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	assert.Equal(t, 13, evals)
	assert.Assert(t, shutdown)

	// Rung sizes 9 -> 3 -> 1: exactly the three best trials see fidelity 3.
	for id := trial.ID(0); id < 9; id++ {
		tr, err := registry.Get(id)
		assert.NilError(t, err)
		promoted := tr.HighestFidelity() > 1
		assert.Equal(t, id < 3, promoted, "trial %d", id)
	}
}

func TestSyncHalvingTieBreaksBySamplingOrder(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{InitialTrials: 9}, ladder)

	constantLoss := func(trial.ID, float64) float64 { return 1.0 }
	_, shutdown := runSim(t, method, ctx, constantLoss, nil)
	assert.Assert(t, shutdown)

	// All losses equal: the earliest-sampled trials win every rung.
	winner, err := registry.Get(0)
	assert.NilError(t, err)
	assert.Equal(t, trial.Done, winner.Status)
	for id := trial.ID(3); id < 9; id++ {
		tr, err := registry.Get(id)
		assert.NilError(t, err)
		assert.Equal(t, trial.Terminated, tr.Status)
		assert.Equal(t, 1.0, tr.HighestFidelity())
	}
}

func TestSyncHalvingSurvivesFailures(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{InitialTrials: 9}, ladder)

	failFirstTwo := func(id trial.ID, fid float64) bool { return id < 2 && fid == 1 }
	evals, shutdown := runSim(t, method, ctx, lossByID, failFirstTwo)

	assert.Equal(t, 13, evals)
	assert.Assert(t, shutdown)

	// Failed trials are terminated with a recorded failure and rank last, so
	// trials 2, 3, 4 advance instead.
	for id := trial.ID(0); id < 2; id++ {
		tr, err := registry.Get(id)
		assert.NilError(t, err)
		assert.Equal(t, trial.Terminated, tr.Status)
		assert.Assert(t, tr.Failure != "")
	}
	winner, err := registry.Get(2)
	assert.NilError(t, err)
	assert.Equal(t, trial.Done, winner.Status)

	counts := statusCounts(registry)
	assert.Equal(t, 1, counts[trial.Done])
	assert.Equal(t, 8, counts[trial.Terminated])
}

func TestSyncHalvingAllTrialsFail(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{InitialTrials: 3}, ladder)

	failAll := func(trial.ID, float64) bool { return true }
	evals, shutdown := runSim(t, method, ctx, lossByID, failAll)

	// Nobody is re-dispatched; the bracket still resolves cleanly.
	assert.Equal(t, 3, evals)
	assert.Assert(t, shutdown)
	counts := statusCounts(registry)
	assert.Equal(t, 3, counts[trial.Terminated])
	assert.Equal(t, 0, counts[trial.Done])
}

func TestSyncHalvingProgress(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newSyncHalvingSearch(SyncHalvingConfig{InitialTrials: 9}, ladder)

	assert.Equal(t, 0.0, method.progress())
	_, _ = runSim(t, method, ctx, lossByID, nil)
	assert.Equal(t, 1.0, method.progress())
}
