package scheduler

import (
	"testing"

	"golang.org/x/exp/rand"
	"gotest.tools/assert"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/sampler"
	"github.com/mfprior/mfsched/pkg/searchspace"
	"github.com/mfprior/mfsched/pkg/trial"
)

func simSpace() searchspace.SearchSpace {
	return searchspace.SearchSpace{
		Name: "sim",
		Params: map[string]searchspace.Hyperparameter{
			"a": {Double: &searchspace.DoubleHyperparameter{Minval: 0, Maxval: 1}},
			"b": {Double: &searchspace.DoubleHyperparameter{Minval: 0, Maxval: 1}},
		},
		MinFidelity: 1,
		MaxFidelity: 27,
	}
}

func simContext(registry *trial.Registry, ladder *fidelity.Ladder) context {
	space := simSpace()
	return context{
		src:      rand.NewSource(42),
		space:    space,
		sampler:  sampler.NewUniform(space),
		history:  sampler.NoHistory,
		registry: registry,
		ladder:   ladder,
	}
}

func mustLadder(t *testing.T, min, max, eta float64) *fidelity.Ladder {
	l, err := fidelity.NewLadder(min, max, eta)
	assert.NilError(t, err)
	return l
}

// runSim drives a method the way a serial dispatcher would: a FIFO queue of
// evaluations, each completing before the next starts. lossOf decides each
// result; failOn marks evaluations that fail instead.
func runSim(
	t *testing.T,
	method Method,
	ctx context,
	lossOf func(id trial.ID, fid float64) float64,
	failOn func(id trial.ID, fid float64) bool,
) (evals int, shutdown bool) {
	var queue []Evaluate
	push := func(ops []Operation) {
		for _, op := range ops {
			switch op := op.(type) {
			case Evaluate:
				queue = append(queue, op)
			case Shutdown:
				shutdown = true
			}
		}
	}

	ops, err := method.initialOperations(ctx)
	assert.NilError(t, err)
	push(ops)

	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]
		assert.NilError(t, ctx.registry.SetStatus(ev.ID, trial.Running))
		evals++

		if failOn != nil && failOn(ev.ID, ev.Fidelity) {
			assert.NilError(t, ctx.registry.RecordFailure(ev.ID, "injected failure"))
			assert.NilError(t, ctx.registry.SetStatus(ev.ID, trial.Terminated))
			ops, err := method.evaluationFailed(ctx, ev.ID)
			assert.NilError(t, err)
			push(ops)
			continue
		}

		loss := lossOf(ev.ID, ev.Fidelity)
		assert.NilError(t, ctx.registry.RecordResult(ev.ID, ev.Fidelity, loss))
		assert.NilError(t, ctx.registry.SetStatus(ev.ID, trial.CompletedRung))
		ops, err := method.evaluationCompleted(ctx, ev.ID, loss)
		assert.NilError(t, err)
		push(ops)
	}
	return evals, shutdown
}

func statusCounts(registry *trial.Registry) map[trial.Status]int {
	counts := map[trial.Status]int{}
	for _, tr := range registry.Query(nil) {
		counts[tr.Status]++
	}
	return counts
}

// lossByID makes lower-numbered trials better, so promotion order is easy to
// predict.
func lossByID(id trial.ID, _ float64) float64 {
	return float64(id)
}
