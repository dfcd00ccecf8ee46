// Package scheduler contains the search methods that race trials through the
// fidelity ladder and the Searcher facade that owns randomness and event
// ordering. Methods are event-driven: they react to evaluation results by
// mutating trial state through the registry and returning the next operations
// for the dispatcher.
package scheduler

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/sampler"
	"github.com/mfprior/mfsched/pkg/searchspace"
	"github.com/mfprior/mfsched/pkg/trial"
)

// Searcher serializes all search method events and owns the run's random
// source, so a fixed seed yields the same trial sequence regardless of how
// the dispatcher interleaves result delivery.
type Searcher struct {
	mu     sync.Mutex
	method Method
	ctx    context
	log    *logrus.Entry
}

// NewSearcher wires a search method to its collaborators under a single
// seeded random source.
func NewSearcher(
	seed uint64,
	method Method,
	space searchspace.SearchSpace,
	smp sampler.Sampler,
	registry *trial.Registry,
	ladder *fidelity.Ladder,
) *Searcher {
	return &Searcher{
		method: method,
		ctx: context{
			src:      rand.NewSource(seed),
			space:    space,
			sampler:  smp,
			history:  sampler.NewRegistryHistory(registry, ladder),
			registry: registry,
			ladder:   ladder,
		},
		log: logrus.WithFields(logrus.Fields{
			"component": "searcher",
			"method":    method.Type(),
		}),
	}
}

// InitialOperations asks the method for the evaluations to dispatch at the
// start of the run. Call exactly once.
func (s *Searcher) InitialOperations() ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, err := s.method.initialOperations(s.ctx)
	if err != nil {
		return nil, errors.Wrap(err, "computing initial operations")
	}
	s.log.WithField("operations", len(ops)).Debug("initial operations")
	return ops, nil
}

// EvaluationCompleted delivers a finished evaluation to the method and
// returns the follow-up operations.
func (s *Searcher) EvaluationCompleted(id trial.ID, loss float64) ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, err := s.method.evaluationCompleted(s.ctx, id, loss)
	if err != nil {
		return nil, errors.Wrapf(err, "handling completed evaluation for trial %d", id)
	}
	s.log.WithFields(logrus.Fields{
		"trial": id, "loss": loss, "operations": len(ops),
	}).Debug("evaluation completed")
	return ops, nil
}

// EvaluationFailed delivers a failed, already-terminated evaluation to the
// method so its racing bookkeeping stays consistent.
func (s *Searcher) EvaluationFailed(id trial.ID) ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, err := s.method.evaluationFailed(s.ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "handling failed evaluation for trial %d", id)
	}
	s.log.WithFields(logrus.Fields{
		"trial": id, "operations": len(ops),
	}).Debug("evaluation failed")
	return ops, nil
}

// Progress returns search progress as a float between 0.0 and 1.0.
func (s *Searcher) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method.progress()
}

// Method returns the type of the underlying search method.
func (s *Searcher) Method() MethodType {
	return s.method.Type()
}
