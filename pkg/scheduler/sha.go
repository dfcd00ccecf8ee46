package scheduler

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/trial"
)

// syncHalvingSearch races one synchronous successive-halving bracket. The
// whole cohort finishes a rung before anyone is promoted, so the promotion
// decision at each rung sees the complete cohort. Hyperband composes several
// of these over different starting rungs.
type syncHalvingSearch struct {
	ladder  *fidelity.Ladder
	bracket fidelity.Bracket

	// rungs[i] tracks the cohort at bracket rung i; ladder rung index is
	// bracket.StartRung + i.
	rungs []*syncRung
	// trialRung maps each live trial to its bracket rung index.
	trialRung map[trial.ID]int
	// seq records sampling order, the promotion tie-break among equal losses.
	seq     map[trial.ID]int
	nextSeq int
	// earlyExit marks trials terminated by a benchmark failure; they finish
	// rungs with a worst-case stand-in loss and are never dispatched again.
	earlyExit map[trial.ID]bool

	finished bool
}

type syncRung struct {
	fidelity float64
	// expected is the cohort size racing at this rung.
	expected int
	results  []trialResult
}

type trialResult struct {
	id   trial.ID
	loss float64
	seq  int
}

func newSyncHalvingSearch(config SyncHalvingConfig, ladder *fidelity.Ladder) *syncHalvingSearch {
	initial := config.InitialTrials
	if initial == 0 {
		initial = int(math.Round(math.Pow(ladder.Eta, float64(ladder.Top()))))
	}
	return newBracketSearch(ladder, fidelity.Bracket{StartRung: 0, InitialTrials: initial})
}

func newBracketSearch(ladder *fidelity.Ladder, bracket fidelity.Bracket) *syncHalvingSearch {
	fids := bracket.Rungs(ladder)
	rungs := make([]*syncRung, len(fids))
	expected := bracket.InitialTrials
	for i, fid := range fids {
		rungs[i] = &syncRung{fidelity: fid, expected: expected}
		expected = promoteCount(expected, ladder.Eta)
	}
	return &syncHalvingSearch{
		ladder:    ladder,
		bracket:   bracket,
		rungs:     rungs,
		trialRung: map[trial.ID]int{},
		seq:       map[trial.ID]int{},
		earlyExit: map[trial.ID]bool{},
	}
}

// promoteCount is the survivor count for a rung of n trials.
func promoteCount(n int, eta float64) int {
	k := int(float64(n) / eta)
	if k < 1 {
		k = 1
	}
	return k
}

func (s *syncHalvingSearch) Type() MethodType { return SuccessiveHalving }

func (s *syncHalvingSearch) initialOperations(ctx context) ([]Operation, error) {
	ops := make([]Operation, 0, s.bracket.InitialTrials)
	for i := 0; i < s.bracket.InitialTrials; i++ {
		id, err := ctx.create()
		if err != nil {
			return nil, err
		}
		s.trialRung[id] = 0
		s.seq[id] = s.nextSeq
		s.nextSeq++
		ops = append(ops, Evaluate{ID: id, Fidelity: s.rungs[0].fidelity})
	}
	return ops, nil
}

func (s *syncHalvingSearch) evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	return s.completed(ctx, id, loss)
}

func (s *syncHalvingSearch) evaluationFailed(ctx context, id trial.ID) ([]Operation, error) {
	s.earlyExit[id] = true
	return s.completed(ctx, id, failedLoss)
}

func (s *syncHalvingSearch) completed(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	ri := s.trialRung[id]
	rung := s.rungs[ri]
	rung.results = append(rung.results, trialResult{id: id, loss: loss, seq: s.seq[id]})
	if len(rung.results) < rung.expected {
		return nil, nil
	}
	return s.resolveRung(ctx, ri)
}

// resolveRung runs the promotion decision once the whole cohort has finished
// the rung.
func (s *syncHalvingSearch) resolveRung(ctx context, ri int) ([]Operation, error) {
	rung := s.rungs[ri]
	sort.SliceStable(rung.results, func(i, j int) bool {
		a, b := rung.results[i], rung.results[j]
		if a.loss != b.loss {
			return a.loss < b.loss
		}
		return a.seq < b.seq
	})

	if ri == len(s.rungs)-1 {
		for _, res := range rung.results {
			if s.earlyExit[res.id] {
				continue
			}
			if err := ctx.registry.SetStatus(res.id, trial.Done); err != nil {
				return nil, errors.Wrapf(err, "finishing trial %d", res.id)
			}
		}
		s.finished = true
		return []Operation{Shutdown{}}, nil
	}

	numPromote := promoteCount(rung.expected, s.ladder.Eta)
	next := s.rungs[ri+1]
	var ops []Operation
	for i, res := range rung.results {
		if i >= numPromote {
			if s.earlyExit[res.id] {
				continue
			}
			if err := ctx.registry.SetStatus(res.id, trial.Terminated); err != nil {
				return nil, errors.Wrapf(err, "terminating trial %d", res.id)
			}
			continue
		}
		s.trialRung[res.id] = ri + 1
		if s.earlyExit[res.id] {
			// A failed trial won promotion because the cohort below it also
			// failed; let it finish the next rung with the stand-in loss so
			// the race keeps moving.
			continue
		}
		if err := ctx.registry.SetStatus(res.id, trial.Promoted); err != nil {
			return nil, errors.Wrapf(err, "promoting trial %d", res.id)
		}
		ops = append(ops, Evaluate{ID: res.id, Fidelity: next.fidelity})
	}

	// Failed promotees complete the next rung immediately.
	for i := 0; i < numPromote; i++ {
		res := rung.results[i]
		if !s.earlyExit[res.id] {
			continue
		}
		more, err := s.completed(ctx, res.id, failedLoss)
		if err != nil {
			return nil, err
		}
		ops = append(ops, more...)
	}
	return ops, nil
}

func (s *syncHalvingSearch) progress() float64 {
	expected, done := 0, 0
	for _, rung := range s.rungs {
		expected += rung.expected
		done += len(rung.results)
	}
	return float64(done) / float64(expected)
}
