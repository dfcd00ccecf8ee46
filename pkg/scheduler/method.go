package scheduler

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/sampler"
	"github.com/mfprior/mfsched/pkg/searchspace"
	"github.com/mfprior/mfsched/pkg/trial"
)

// failedLoss stands in for the result of a failed evaluation so racing
// bookkeeping never stalls on a missing cohort member.
const failedLoss = math.MaxFloat64

// context carries the collaborators a search method decides with. It is
// rebuilt per call by the Searcher facade; methods hold no reference to it
// between events.
type context struct {
	src      rand.Source
	space    searchspace.SearchSpace
	sampler  sampler.Sampler
	history  sampler.History
	registry *trial.Registry
	ladder   *fidelity.Ladder
}

// create samples one configuration and registers it as a new trial.
func (ctx context) create() (trial.ID, error) {
	cfg, err := ctx.sampler.Sample(ctx.src, ctx.history)
	if err != nil {
		return 0, errors.Wrap(err, "sampling configuration for new trial")
	}
	return ctx.registry.Create(cfg), nil
}

// Method is the interface racing strategies implement. Implementations use
// pointer receivers so interface equality is pointer equality.
type Method interface {
	// initialOperations returns the evaluations the method wants dispatched
	// at the start of the run. Called exactly once.
	initialOperations(ctx context) ([]Operation, error)
	// evaluationCompleted informs the method that the trial finished its
	// current rung with the given loss and returns follow-up operations.
	evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error)
	// evaluationFailed informs the method that the trial's evaluation failed
	// and was terminated; the method keeps its racing bookkeeping consistent.
	evaluationFailed(ctx context, id trial.ID) ([]Operation, error)
	// progress returns search progress as a float between 0.0 and 1.0.
	progress() float64

	Type() MethodType
}

// MethodType names a search method variant.
type MethodType string

const (
	// RandomSearch races nothing: every trial runs straight at the top
	// fidelity.
	RandomSearch MethodType = "random_search"
	// SuccessiveHalving is a single synchronous bracket.
	SuccessiveHalving MethodType = "successive_halving"
	// Hyperband sweeps synchronous brackets over all starting rungs.
	Hyperband MethodType = "hyperband"
	// ASHA is asynchronous successive halving.
	ASHA MethodType = "asha"
	// BOHB is ASHA driven by the model-based sampler.
	BOHB MethodType = "bohb"
)

// NewMethod returns the search method for the provided configuration.
func NewMethod(c Config, ladder *fidelity.Ladder) (Method, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.Random != nil:
		return newRandomSearch(*c.Random, ladder), nil
	case c.SyncHalving != nil:
		return newSyncHalvingSearch(*c.SyncHalving, ladder), nil
	case c.Hyperband != nil:
		return newHyperbandSearch(*c.Hyperband, ladder), nil
	case c.AsyncHalving != nil:
		return newAsyncHalvingSearch(*c.AsyncHalving, ladder, ASHA), nil
	case c.BOHB != nil:
		return newAsyncHalvingSearch(c.BOHB.AsyncHalvingConfig, ladder, BOHB), nil
	default:
		return nil, errors.New("no search method specified")
	}
}
