// Package sampler produces candidate configurations for the schedulers. The
// three policies (uniform, prior-weighted, model-based) share one interface
// so an algorithm picks its sampling behavior by construction, not by
// branching.
package sampler

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// maxSampleRetries bounds the fresh draws attempted after an out-of-bounds
// sample before the attempt is given up.
const maxSampleRetries = 8

// Observation pairs a configuration with the loss it achieved, the unit the
// surrogate model is fit on.
type Observation struct {
	Config searchspace.Config
	Loss   float64
}

// History exposes the completed observations of a run grouped by rung. The
// model-based sampler fits its surrogate on the highest rung with enough
// observations.
type History interface {
	// ObservationsAt returns the completed observations at the given rung
	// index, in completion order.
	ObservationsAt(rung int) []Observation
	// HighestRungWith returns the highest rung index holding at least min
	// observations, or -1 if no rung qualifies.
	HighestRungWith(min int) int
}

// emptyHistory backs samplers that ignore history.
type emptyHistory struct{}

func (emptyHistory) ObservationsAt(int) []Observation { return nil }
func (emptyHistory) HighestRungWith(int) int          { return -1 }

// NoHistory is the History for samplers that do not condition on past
// results.
var NoHistory History = emptyHistory{}

// Sampler draws one configuration. Implementations are pure functions of
// (space, history, RNG state): for a fixed seed and history the draw is
// reproducible.
type Sampler interface {
	Sample(src rand.Source, history History) (searchspace.Config, error)
}

type uniformSampler struct {
	space searchspace.SearchSpace
}

// NewUniform returns a sampler drawing every hyperparameter independently
// and uniformly from its bounds.
func NewUniform(space searchspace.SearchSpace) Sampler {
	return &uniformSampler{space: space}
}

func (s *uniformSampler) Sample(src rand.Source, _ History) (searchspace.Config, error) {
	return checkedDraw(s.space, func() searchspace.Config {
		return searchspace.SampleUniform(s.space, src)
	})
}

type priorSampler struct {
	space searchspace.SearchSpace
}

// NewPrior returns a sampler drawing from the declared prior distributions,
// good or bad. Hyperparameters without a prior are drawn uniformly.
func NewPrior(space searchspace.SearchSpace) Sampler {
	return &priorSampler{space: space}
}

func (s *priorSampler) Sample(src rand.Source, _ History) (searchspace.Config, error) {
	return checkedDraw(s.space, func() searchspace.Config {
		return searchspace.SamplePrior(s.space, src)
	})
}

// checkedDraw validates a draw against the space bounds, retrying with a
// fresh draw on violation. An out-of-bounds sample is fatal to that attempt
// only.
func checkedDraw(space searchspace.SearchSpace, draw func() searchspace.Config) (searchspace.Config, error) {
	var err error
	for i := 0; i < maxSampleRetries; i++ {
		cfg := draw()
		if err = space.Contains(cfg); err == nil {
			return cfg, nil
		}
	}
	return nil, errors.Wrap(err, "sampler produced no in-bounds configuration")
}
