package scheduler

import (
	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/trial"
)

// randomSearch evaluates every trial once at the top fidelity. It is the
// no-racing baseline the multi-fidelity methods are measured against.
type randomSearch struct {
	config RandomConfig
	ladder *fidelity.Ladder

	created  int
	finished int
}

func newRandomSearch(config RandomConfig, ladder *fidelity.Ladder) *randomSearch {
	return &randomSearch{config: config, ladder: ladder}
}

func (s *randomSearch) Type() MethodType { return RandomSearch }

func (s *randomSearch) maxConcurrent() int {
	if s.config.MaxConcurrentTrials > 0 && s.config.MaxConcurrentTrials < s.config.MaxTrials {
		return s.config.MaxConcurrentTrials
	}
	return s.config.MaxTrials
}

func (s *randomSearch) initialOperations(ctx context) ([]Operation, error) {
	var ops []Operation
	for i := 0; i < s.maxConcurrent(); i++ {
		op, err := s.spawn(ctx)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (s *randomSearch) spawn(ctx context) (Operation, error) {
	id, err := ctx.create()
	if err != nil {
		return nil, err
	}
	s.created++
	return Evaluate{ID: id, Fidelity: s.ladder.Rung(s.ladder.Top())}, nil
}

func (s *randomSearch) evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	if err := ctx.registry.SetStatus(id, trial.Done); err != nil {
		return nil, errors.Wrapf(err, "finishing trial %d", id)
	}
	return s.next(ctx)
}

func (s *randomSearch) evaluationFailed(ctx context, id trial.ID) ([]Operation, error) {
	return s.next(ctx)
}

func (s *randomSearch) next(ctx context) ([]Operation, error) {
	s.finished++
	if s.created < s.config.MaxTrials {
		op, err := s.spawn(ctx)
		if err != nil {
			return nil, err
		}
		return []Operation{op}, nil
	}
	if s.finished == s.config.MaxTrials {
		return []Operation{Shutdown{}}, nil
	}
	return nil, nil
}

func (s *randomSearch) progress() float64 {
	return float64(s.finished) / float64(s.config.MaxTrials)
}
