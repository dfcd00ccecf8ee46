package scheduler

import (
	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/trial"
)

// tournamentSearch multiplexes several sub-searches over one trial registry,
// routing each evaluation event to the sub-search that created the trial. It
// emits a single Shutdown once every sub-search has shut down.
type tournamentSearch struct {
	subSearches []Method
	// trialTable maps each trial to the index of the sub-search owning it.
	trialTable map[trial.ID]int
	subDone    []bool
}

func newTournamentSearch(subSearches ...Method) *tournamentSearch {
	return &tournamentSearch{
		subSearches: subSearches,
		trialTable:  map[trial.ID]int{},
		subDone:     make([]bool, len(subSearches)),
	}
}

func (s *tournamentSearch) initialOperations(ctx context) ([]Operation, error) {
	var ops []Operation
	for i, sub := range s.subSearches {
		subOps, err := sub.initialOperations(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "initial operations of sub-search %d", i)
		}
		ops = append(ops, s.claim(i, subOps)...)
	}
	return ops, nil
}

func (s *tournamentSearch) evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	i, ok := s.trialTable[id]
	if !ok {
		return nil, errors.Errorf("trial %d belongs to no sub-search", id)
	}
	ops, err := s.subSearches[i].evaluationCompleted(ctx, id, loss)
	if err != nil {
		return nil, err
	}
	return s.claim(i, ops), nil
}

func (s *tournamentSearch) evaluationFailed(ctx context, id trial.ID) ([]Operation, error) {
	i, ok := s.trialTable[id]
	if !ok {
		return nil, errors.Errorf("trial %d belongs to no sub-search", id)
	}
	ops, err := s.subSearches[i].evaluationFailed(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.claim(i, ops), nil
}

// claim records ownership of new trials and swallows sub-search Shutdowns,
// replacing the last one with the tournament's own.
func (s *tournamentSearch) claim(sub int, ops []Operation) []Operation {
	out := ops[:0]
	for _, op := range ops {
		switch op := op.(type) {
		case Evaluate:
			if _, ok := s.trialTable[op.ID]; !ok {
				s.trialTable[op.ID] = sub
			}
			out = append(out, op)
		case Shutdown:
			s.subDone[sub] = true
			if s.done() {
				out = append(out, op)
			}
		default:
			out = append(out, op)
		}
	}
	return out
}

func (s *tournamentSearch) done() bool {
	for _, d := range s.subDone {
		if !d {
			return false
		}
	}
	return true
}

func (s *tournamentSearch) progress() float64 {
	total := 0.0
	for _, sub := range s.subSearches {
		total += sub.progress()
	}
	return total / float64(len(s.subSearches))
}

func (s *tournamentSearch) Type() MethodType { return s.subSearches[0].Type() }
