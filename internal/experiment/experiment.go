// Package experiment assembles one optimization run from a configuration:
// benchmark, ladder, sampler, search method, dispatcher, and the trajectory
// file the run writes for later analysis.
package experiment

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mfprior/mfsched/pkg/benchmark"
	"github.com/mfprior/mfsched/pkg/check"
	"github.com/mfprior/mfsched/pkg/dispatch"
	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/sampler"
	"github.com/mfprior/mfsched/pkg/scheduler"
	"github.com/mfprior/mfsched/pkg/trial"
)

// Config describes one run.
type Config struct {
	// Algorithm is one of the scheduler method types.
	Algorithm string `json:"algorithm" mapstructure:"algorithm"`
	// Benchmark is a registered benchmark identifier.
	Benchmark string `json:"benchmark" mapstructure:"benchmark"`
	Seed      uint64 `json:"seed" mapstructure:"seed"`
	// Workers is the number of concurrent evaluations.
	Workers int `json:"workers" mapstructure:"workers"`
	// Budget is the total evaluation budget in fidelity units.
	Budget float64 `json:"budget" mapstructure:"budget"`
	// MaxTrials caps the number of sampled configurations; 0 takes the
	// default.
	MaxTrials int `json:"max_trials" mapstructure:"max_trials"`
	// Eta is the halving rate; 0 takes the default of 3.
	Eta float64 `json:"eta" mapstructure:"eta"`
	// Group names the experiment group the trajectory is filed under.
	Group string `json:"group" mapstructure:"group"`
	// OutDir is the root directory trajectories are written to; empty
	// disables trajectory output.
	OutDir string `json:"out_dir" mapstructure:"out_dir"`
}

const (
	defaultMaxTrials = 64
	defaultEta       = 3
)

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	return []error{
		check.NotEmpty(c.Algorithm, "algorithm must be set"),
		check.NotEmpty(c.Benchmark, "benchmark must be set"),
		check.GreaterThan(c.Budget, 0.0, "budget must be > 0"),
		check.GreaterThanOrEqualTo(c.Workers, 0, "workers must be >= 0"),
		check.GreaterThanOrEqualTo(c.MaxTrials, 0, "max_trials must be >= 0"),
		check.GreaterThanOrEqualTo(c.Eta, 0.0, "eta must be >= 0"),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTrials == 0 {
		c.MaxTrials = defaultMaxTrials
	}
	if c.Eta == 0 {
		c.Eta = defaultEta
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Group == "" {
		c.Group = "default"
	}
	return c
}

// Experiment is one assembled run.
type Experiment struct {
	config   Config
	bench    benchmark.Benchmark
	ladder   *fidelity.Ladder
	registry *trial.Registry
	budget   *trial.Budget
	searcher *scheduler.Searcher
	log      *logrus.Entry
}

// New validates the configuration and assembles the run.
func New(config Config) (*Experiment, error) {
	if err := check.Validate(config); err != nil {
		return nil, errors.Wrap(err, "invalid experiment configuration")
	}
	config = config.withDefaults()

	bench, err := benchmark.New(config.Benchmark, config.Seed)
	if err != nil {
		return nil, err
	}
	min, max := bench.FidelityRange()
	ladder, err := fidelity.NewLadder(min, max, config.Eta)
	if err != nil {
		return nil, err
	}

	space := bench.Space()
	mc, err := methodConfig(config, ladder)
	if err != nil {
		return nil, err
	}
	method, err := scheduler.NewMethod(mc, ladder)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s method", config.Algorithm)
	}

	smp := sampler.NewUniform(space)
	if space.HasPrior() {
		smp = sampler.NewPrior(space)
	}
	if method.Type() == scheduler.BOHB {
		b := mc.BOHB
		smp = sampler.NewModelBased(space, sampler.NewKDE(space, sampler.KDEConfig{}), smp,
			sampler.ModelConfig{
				RandomFraction:  b.RandomFraction,
				MinObservations: b.MinObservations,
			})
	}

	registry := trial.NewRegistry()
	return &Experiment{
		config:   config,
		bench:    bench,
		ladder:   ladder,
		registry: registry,
		budget:   trial.NewBudget(config.Budget),
		searcher: scheduler.NewSearcher(config.Seed, method, space, smp, registry, ladder),
		log: logrus.WithFields(logrus.Fields{
			"algorithm": config.Algorithm,
			"benchmark": config.Benchmark,
			"seed":      config.Seed,
		}),
	}, nil
}

// methodConfig maps the algorithm name to a scheduler configuration. The
// max-trials cap binds every algorithm: the synchronous ones size their
// cohorts under it, so whichever of the cap and the budget exhausts first
// ends sampling.
func methodConfig(c Config, ladder *fidelity.Ladder) (scheduler.Config, error) {
	switch scheduler.MethodType(c.Algorithm) {
	case scheduler.RandomSearch:
		return scheduler.Config{Random: &scheduler.RandomConfig{
			MaxTrials:           c.MaxTrials,
			MaxConcurrentTrials: c.Workers,
		}}, nil
	case scheduler.SuccessiveHalving:
		width := int(math.Round(math.Pow(ladder.Eta, float64(ladder.Top()))))
		return scheduler.Config{SyncHalving: &scheduler.SyncHalvingConfig{
			InitialTrials: min(c.MaxTrials, width),
		}}, nil
	case scheduler.Hyperband:
		return scheduler.Config{Hyperband: &scheduler.HyperbandConfig{
			MaxTrials: c.MaxTrials,
		}}, nil
	case scheduler.ASHA:
		return scheduler.Config{AsyncHalving: &scheduler.AsyncHalvingConfig{
			MaxTrials: c.MaxTrials,
		}}, nil
	case scheduler.BOHB:
		return scheduler.Config{BOHB: &scheduler.BOHBConfig{
			AsyncHalvingConfig: scheduler.AsyncHalvingConfig{MaxTrials: c.MaxTrials},
		}}, nil
	default:
		return scheduler.Config{}, errors.Errorf("unknown algorithm %q", c.Algorithm)
	}
}

// Registry exposes the trial registry, for inspection after Run.
func (e *Experiment) Registry() *trial.Registry { return e.registry }

// Budget exposes the run budget, for inspection after Run.
func (e *Experiment) Budget() *trial.Budget { return e.budget }

// TrajectoryPath returns the trajectory file the run writes, or "" when
// output is disabled.
func (e *Experiment) TrajectoryPath() string {
	if e.config.OutDir == "" {
		return ""
	}
	return filepath.Join(
		e.config.OutDir, e.config.Group, e.config.Benchmark, e.config.Algorithm,
		fmt.Sprintf("seed_%d.jsonl", e.config.Seed),
	)
}

// Run executes the experiment to completion.
func (e *Experiment) Run(ctx context.Context) error {
	recorder, err := e.recorder()
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"budget":  e.config.Budget,
		"workers": e.config.Workers,
		"rungs":   e.ladder.Rungs(),
	}).Info("starting run")

	d := dispatch.New(dispatch.Config{
		Searcher:  e.searcher,
		Benchmark: e.bench,
		Registry:  e.registry,
		Budget:    e.budget,
		Workers:   e.config.Workers,
		Recorder:  recorder,
	})
	if err := d.Run(ctx); err != nil {
		return err
	}

	best, ok := e.Best()
	fields := logrus.Fields{
		"trials":   e.registry.Count(),
		"spent":    e.budget.Spent(),
		"progress": e.searcher.Progress(),
	}
	if ok {
		fields["best_loss"] = best.Loss
		fields["best_trial"] = best.Trial
	}
	e.log.WithFields(fields).Info("run finished")
	return nil
}

func (e *Experiment) recorder() (dispatch.TrajectoryRecorder, error) {
	path := e.TrajectoryPath()
	if path == "" {
		return dispatch.NopRecorder{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating trajectory directory")
	}
	return newTrajectoryWriter(path, header{
		Run:       runID(),
		Algorithm: e.config.Algorithm,
		Benchmark: e.config.Benchmark,
		Group:     e.config.Group,
		Seed:      e.config.Seed,
		Workers:   e.config.Workers,
		Budget:    e.config.Budget,
		Eta:       e.ladder.Eta,
		Rungs:     e.ladder.Rungs(),
	})
}

// BestResult is the best evaluation at the highest fidelity a run reached.
type BestResult struct {
	Trial    trial.ID
	Loss     float64
	Fidelity float64
}

// Best returns the lowest loss observed at the highest rung holding any
// observation, preferring the earlier-created trial on ties. A budget-starved
// run may never reach the top rung; its best is judged at the highest rung it
// did reach.
func (e *Experiment) Best() (BestResult, bool) {
	trials := e.registry.Query(nil)
	for r := e.ladder.Top(); r >= 0; r-- {
		fid := e.ladder.Rung(r)
		var best BestResult
		found := false
		for _, t := range trials {
			loss, ok := t.LossAt(fid)
			if !ok {
				continue
			}
			if !found || loss < best.Loss {
				best = BestResult{Trial: t.ID, Loss: loss, Fidelity: fid}
				found = true
			}
		}
		if found {
			return best, true
		}
	}
	return BestResult{}, false
}
