package sampler

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// ModelConfig tunes the model-based sampler.
type ModelConfig struct {
	// RandomFraction is the probability of ignoring the surrogate and
	// drawing from the fallback sampler instead, so exploration survives a
	// degenerate model.
	RandomFraction float64
	// MinObservations is the observation count a rung needs before the
	// surrogate is consulted; below it every draw falls back.
	MinObservations int
}

type modelSampler struct {
	space     searchspace.SearchSpace
	surrogate Surrogate
	fallback  Sampler
	config    ModelConfig
}

// NewModelBased returns a BOHB-style sampler: with probability
// 1-RandomFraction it fits the surrogate on the highest rung holding at least
// MinObservations completed observations and samples from its suggestion;
// otherwise, or when no rung qualifies yet, it defers to the fallback
// sampler. Zero config fields take defaults (RandomFraction 1/3,
// MinObservations dim+2).
func NewModelBased(
	space searchspace.SearchSpace, surrogate Surrogate, fallback Sampler, config ModelConfig,
) Sampler {
	if config.RandomFraction <= 0 {
		config.RandomFraction = 1.0 / 3
	}
	if config.MinObservations <= 0 {
		config.MinObservations = space.Dim() + 2
	}
	return &modelSampler{
		space:     space,
		surrogate: surrogate,
		fallback:  fallback,
		config:    config,
	}
}

func (s *modelSampler) Sample(src rand.Source, history History) (searchspace.Config, error) {
	rng := rand.New(src)
	if rng.Float64() < s.config.RandomFraction {
		return s.fallback.Sample(src, history)
	}

	rung := history.HighestRungWith(s.config.MinObservations)
	if rung < 0 {
		// Cold start: not enough observations anywhere yet.
		return s.fallback.Sample(src, history)
	}

	if err := s.surrogate.Fit(history.ObservationsAt(rung)); err != nil {
		return s.fallback.Sample(src, history)
	}
	cfg, err := s.surrogate.Suggest(src)
	if err != nil {
		return nil, errors.Wrap(err, "surrogate suggestion failed")
	}
	if err := s.space.Contains(cfg); err != nil {
		return s.fallback.Sample(src, history)
	}
	return cfg, nil
}
