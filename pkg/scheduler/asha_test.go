package scheduler

import (
	"testing"

	"gotest.tools/assert"

	"github.com/mfprior/mfsched/pkg/trial"
)

func TestAsyncRungPromotions(t *testing.T) {
	r := &asyncRung{fidelity: 1}

	// Too few results: nobody is promoted yet.
	assert.Equal(t, 0, len(r.insert(0, 0.1, 0, 3)))
	assert.Equal(t, 0, len(r.insert(1, 0.2, 1, 3)))

	// The third result widens the quota to one and retroactively promotes the
	// best parked trial.
	promoted := r.insert(2, 0.3, 2, 3)
	assert.DeepEqual(t, []trial.ID{0}, promoted)

	// A result landing inside the quota is promoted immediately.
	promoted = r.insert(3, 0.05, 3, 3)
	assert.DeepEqual(t, []trial.ID{3}, promoted)

	// A mediocre result neither promotes itself nor anyone else.
	assert.Equal(t, 0, len(r.insert(4, 0.25, 4, 3)))

	// The sixth result widens the quota to two, but the trial at the quota
	// boundary was already promoted out of turn, so nothing happens.
	assert.Equal(t, 0, len(r.insert(5, 0.4, 5, 3)))
	assert.Equal(t, 0, len(r.insert(6, 0.45, 6, 3)))
	assert.Equal(t, 0, len(r.insert(7, 0.5, 7, 3)))

	// The ninth result widens the quota to three; the best unpromoted trial
	// is the 0.2 one.
	promoted = r.insert(8, 0.55, 8, 3)
	assert.DeepEqual(t, []trial.ID{1}, promoted)
}

func TestAsyncRungTieBreaksBySamplingOrder(t *testing.T) {
	r := &asyncRung{fidelity: 1}
	r.insert(7, 0.5, 0, 3)
	r.insert(3, 0.5, 1, 3)

	// Equal losses: the earlier-sampled trial ranks first and wins the
	// retroactive promotion.
	promoted := r.insert(9, 0.5, 2, 3)
	assert.DeepEqual(t, []trial.ID{7}, promoted)
}

func TestAsyncHalvingRunsToCompletion(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(AsyncHalvingConfig{MaxTrials: 9}, ladder, ASHA)

	evals, shutdown := runSim(t, method, ctx, lossByID, nil)

	// 9 at the bottom rung, 3 promotions to the middle, 1 to the top.
	assert.Equal(t, 13, evals)
	assert.Assert(t, shutdown)
	assert.Equal(t, 9, registry.Count())

	counts := statusCounts(registry)
	assert.Equal(t, 1, counts[trial.Done])
	assert.Equal(t, 8, counts[trial.Terminated])

	winner, err := registry.Get(0)
	assert.NilError(t, err)
	assert.Equal(t, trial.Done, winner.Status)
	assert.Equal(t, 9.0, winner.HighestFidelity())
}

func TestAsyncHalvingRespectsConcurrencyCap(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(
		AsyncHalvingConfig{MaxTrials: 6, MaxConcurrentTrials: 2}, ladder, ASHA)

	ops, err := method.initialOperations(ctx)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(ops))
}

func TestAsyncHalvingAllTrialsFail(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(AsyncHalvingConfig{MaxTrials: 3}, ladder, ASHA)

	failAll := func(trial.ID, float64) bool { return true }
	evals, shutdown := runSim(t, method, ctx, lossByID, failAll)

	assert.Equal(t, 3, evals)
	assert.Assert(t, shutdown)
	counts := statusCounts(registry)
	assert.Equal(t, 3, counts[trial.Terminated])
	for _, tr := range registry.Query(nil) {
		assert.Assert(t, tr.Failure != "")
	}
}

func TestAsyncHalvingFailedTrialStaysOutOfTheRace(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(AsyncHalvingConfig{MaxTrials: 9}, ladder, ASHA)

	failFirst := func(id trial.ID, fid float64) bool { return id == 0 && fid == 1 }
	_, shutdown := runSim(t, method, ctx, lossByID, failFirst)

	assert.Assert(t, shutdown)
	failed, err := registry.Get(0)
	assert.NilError(t, err)
	assert.Equal(t, trial.Terminated, failed.Status)
	assert.Equal(t, 0, len(failed.Observations))

	// Someone else wins the top rung.
	counts := statusCounts(registry)
	assert.Equal(t, 1, counts[trial.Done])
}

func TestAsyncHalvingEveryTrialReachesATerminalStatus(t *testing.T) {
	ladder := mustLadder(t, 1, 27, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(AsyncHalvingConfig{MaxTrials: 20}, ladder, ASHA)

	_, shutdown := runSim(t, method, ctx, lossByID, nil)
	assert.Assert(t, shutdown)
	assert.Equal(t, 20, registry.Count())
	for _, tr := range registry.Query(nil) {
		assert.Assert(t, tr.Status.Terminal(), "trial %d left in %s", tr.ID, tr.Status)
	}
}

func TestAsyncHalvingProgressReachesOne(t *testing.T) {
	ladder := mustLadder(t, 1, 9, 3)
	registry := trial.NewRegistry()
	ctx := simContext(registry, ladder)
	method := newAsyncHalvingSearch(AsyncHalvingConfig{MaxTrials: 9}, ladder, ASHA)

	assert.Equal(t, 0.0, method.progress())
	_, _ = runSim(t, method, ctx, lossByID, nil)
	assert.Equal(t, 1.0, method.progress())
}
