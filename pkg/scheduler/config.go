package scheduler

import (
	"github.com/mfprior/mfsched/pkg/check"
)

// Config selects and tunes one search method. Exactly one variant field must
// be set.
type Config struct {
	Random       *RandomConfig       `json:"random_search,omitempty"`
	SyncHalving  *SyncHalvingConfig  `json:"successive_halving,omitempty"`
	Hyperband    *HyperbandConfig    `json:"hyperband,omitempty"`
	AsyncHalving *AsyncHalvingConfig `json:"asha,omitempty"`
	BOHB         *BOHBConfig         `json:"bohb,omitempty"`
}

// Validate returns an error if the configuration selects no variant, more
// than one, or an invalid one.
func (c Config) Validate() error {
	set := 0
	var v check.Validatable
	if c.Random != nil {
		set++
		v = *c.Random
	}
	if c.SyncHalving != nil {
		set++
		v = *c.SyncHalving
	}
	if c.Hyperband != nil {
		set++
		v = *c.Hyperband
	}
	if c.AsyncHalving != nil {
		set++
		v = *c.AsyncHalving
	}
	if c.BOHB != nil {
		set++
		v = *c.BOHB
	}
	if set != 1 {
		return check.Validate(invalidVariantCount(set))
	}
	return check.Validate(v)
}

type invalidVariantCount int

func (n invalidVariantCount) Validate() []error {
	return []error{check.Equal(int(n), 1, "exactly one search method must be configured")}
}

// RandomConfig configures random search: MaxTrials evaluations at the top
// fidelity, at most MaxConcurrentTrials in flight.
type RandomConfig struct {
	MaxTrials           int `json:"max_trials"`
	MaxConcurrentTrials int `json:"max_concurrent_trials"`
}

// Validate implements the check.Validatable interface.
func (r RandomConfig) Validate() []error {
	return []error{
		check.GreaterThan(r.MaxTrials, 0, "max_trials must be > 0"),
		check.GreaterThanOrEqualTo(r.MaxConcurrentTrials, 0, "max_concurrent_trials must be >= 0"),
	}
}

// SyncHalvingConfig configures a single synchronous successive-halving
// bracket starting at the bottom rung.
type SyncHalvingConfig struct {
	// InitialTrials is the cohort size at the starting rung; 0 means
	// eta^(top rung index), the size that races down to a single survivor.
	InitialTrials int `json:"initial_trials"`
}

// Validate implements the check.Validatable interface.
func (s SyncHalvingConfig) Validate() []error {
	return []error{
		check.GreaterThanOrEqualTo(s.InitialTrials, 0, "initial_trials must be >= 0"),
	}
}

// HyperbandConfig configures the bracket sweep.
type HyperbandConfig struct {
	// MaxSweeps bounds the number of full bracket sweeps; 0 keeps sweeping
	// until the budget ends the run.
	MaxSweeps int `json:"max_sweeps"`
	// MaxTrials caps the configurations sampled across all sweeps; bracket
	// cohorts shrink to fit the cap. 0 leaves sampling bounded only by the
	// sweep limit and the budget.
	MaxTrials int `json:"max_trials"`
}

// Validate implements the check.Validatable interface.
func (h HyperbandConfig) Validate() []error {
	return []error{
		check.GreaterThanOrEqualTo(h.MaxSweeps, 0, "max_sweeps must be >= 0"),
		check.GreaterThanOrEqualTo(h.MaxTrials, 0, "max_trials must be >= 0"),
	}
}

// AsyncHalvingConfig configures ASHA.
type AsyncHalvingConfig struct {
	MaxTrials int `json:"max_trials"`
	// MaxConcurrentTrials caps the trials in flight; 0 picks
	// min(eta^(top rung index), MaxTrials).
	MaxConcurrentTrials int `json:"max_concurrent_trials"`
}

// Validate implements the check.Validatable interface.
func (a AsyncHalvingConfig) Validate() []error {
	return []error{
		check.GreaterThan(a.MaxTrials, 0, "max_trials must be > 0"),
		check.GreaterThanOrEqualTo(a.MaxConcurrentTrials, 0, "max_concurrent_trials must be >= 0"),
	}
}

// BOHBConfig configures BOHB: ASHA racing plus the model-based sampler. The
// sampler fields are consumed by the experiment driver when it builds the
// sampler stack.
type BOHBConfig struct {
	AsyncHalvingConfig
	// RandomFraction is the probability of a prior/uniform draw instead of a
	// surrogate suggestion; 0 means the default 1/3.
	RandomFraction float64 `json:"random_fraction"`
	// MinObservations gates surrogate fitting; 0 means dimensions+2.
	MinObservations int `json:"min_observations"`
}

// Validate implements the check.Validatable interface.
func (b BOHBConfig) Validate() []error {
	errs := b.AsyncHalvingConfig.Validate()
	return append(errs,
		check.True(b.RandomFraction >= 0 && b.RandomFraction <= 1,
			"random_fraction must be in [0, 1]"),
		check.GreaterThanOrEqualTo(b.MinObservations, 0, "min_observations must be >= 0"),
	)
}
