package scheduler

import (
	"math"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/trial"
)

// hyperbandSearch sweeps a tournament of synchronous halving brackets, one
// per ladder starting rung, and starts a fresh sweep whenever the previous
// one resolves. With MaxSweeps of zero it sweeps until the budget runs out.
type hyperbandSearch struct {
	config HyperbandConfig
	ladder *fidelity.Ladder

	sweep      *tournamentSearch
	sweepsDone int
	created    int
}

func newHyperbandSearch(config HyperbandConfig, ladder *fidelity.Ladder) *hyperbandSearch {
	return &hyperbandSearch{config: config, ladder: ladder}
}

func (s *hyperbandSearch) Type() MethodType { return Hyperband }

// newSweep builds the next sweep's brackets, shrinking cohorts to whatever
// the trial cap still allows. It returns nil once the cap leaves no room for
// another configuration.
func (s *hyperbandSearch) newSweep() *tournamentSearch {
	var subs []Method
	for _, b := range s.ladder.Brackets() {
		if s.config.MaxTrials > 0 {
			remaining := s.config.MaxTrials - s.created
			if remaining <= 0 {
				break
			}
			if b.InitialTrials > remaining {
				b.InitialTrials = remaining
			}
		}
		s.created += b.InitialTrials
		subs = append(subs, newBracketSearch(s.ladder, b))
	}
	if len(subs) == 0 {
		return nil
	}
	return newTournamentSearch(subs...)
}

func (s *hyperbandSearch) initialOperations(ctx context) ([]Operation, error) {
	s.sweep = s.newSweep()
	if s.sweep == nil {
		return []Operation{Shutdown{}}, nil
	}
	return s.sweep.initialOperations(ctx)
}

func (s *hyperbandSearch) evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	ops, err := s.sweep.evaluationCompleted(ctx, id, loss)
	if err != nil {
		return nil, err
	}
	return s.maybeResweep(ctx, ops)
}

func (s *hyperbandSearch) evaluationFailed(ctx context, id trial.ID) ([]Operation, error) {
	ops, err := s.sweep.evaluationFailed(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.maybeResweep(ctx, ops)
}

// maybeResweep replaces a finished sweep's Shutdown with the opening
// operations of the next sweep, unless the sweep limit or the trial cap is
// reached.
func (s *hyperbandSearch) maybeResweep(ctx context, ops []Operation) ([]Operation, error) {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if _, ok := op.(Shutdown); !ok {
			out = append(out, op)
			continue
		}
		s.sweepsDone++
		var next *tournamentSearch
		if s.config.MaxSweeps == 0 || s.sweepsDone < s.config.MaxSweeps {
			next = s.newSweep()
		}
		if next == nil {
			out = append(out, op)
			continue
		}
		s.sweep = next
		opening, err := s.sweep.initialOperations(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, opening...)
	}
	return out, nil
}

func (s *hyperbandSearch) progress() float64 {
	if s.sweep == nil {
		return 0
	}
	if s.config.MaxSweeps == 0 {
		// Unbounded sweeps; report progress within the current sweep.
		return s.sweep.progress()
	}
	done := float64(s.sweepsDone)
	if s.sweepsDone < s.config.MaxSweeps {
		done += s.sweep.progress()
	}
	return math.Min(1, done/float64(s.config.MaxSweeps))
}
