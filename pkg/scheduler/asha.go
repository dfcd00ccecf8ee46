package scheduler

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/trial"
)

// asyncHalvingSearch is asynchronous successive halving: promotion decisions
// are made per result against the rung's history so far, never waiting for a
// full cohort. A trial in the top 1/eta of its rung at arrival is promoted
// immediately; otherwise a result can retroactively make a previously parked
// trial eligible. BOHB is the same racing logic under a model-based sampler.
type asyncHalvingSearch struct {
	config     AsyncHalvingConfig
	ladder     *fidelity.Ladder
	methodType MethodType

	rungs     []*asyncRung
	trialRung map[trial.ID]int
	seq       map[trial.ID]int
	nextSeq   int
	earlyExit map[trial.ID]bool

	created     int
	outstanding int
	completions int
	shutdown    bool
}

type asyncRung struct {
	fidelity float64
	// metrics is kept sorted by (loss, seq); seq is sampling order and breaks
	// ties deterministically.
	metrics []asyncMetric
}

type asyncMetric struct {
	id       trial.ID
	loss     float64
	seq      int
	promoted bool
}

func newAsyncHalvingSearch(
	config AsyncHalvingConfig, ladder *fidelity.Ladder, methodType MethodType,
) *asyncHalvingSearch {
	rungs := make([]*asyncRung, ladder.NumRungs())
	for i := range rungs {
		rungs[i] = &asyncRung{fidelity: ladder.Rung(i)}
	}
	return &asyncHalvingSearch{
		config:     config,
		ladder:     ladder,
		methodType: methodType,
		rungs:      rungs,
		trialRung:  map[trial.ID]int{},
		seq:        map[trial.ID]int{},
		earlyExit:  map[trial.ID]bool{},
	}
}

func (s *asyncHalvingSearch) Type() MethodType { return s.methodType }

func (s *asyncHalvingSearch) maxConcurrent() int {
	if s.config.MaxConcurrentTrials > 0 {
		if s.config.MaxConcurrentTrials < s.config.MaxTrials {
			return s.config.MaxConcurrentTrials
		}
		return s.config.MaxTrials
	}
	width := int(math.Round(math.Pow(s.ladder.Eta, float64(s.ladder.Top()))))
	if width > s.config.MaxTrials {
		return s.config.MaxTrials
	}
	return width
}

func (s *asyncHalvingSearch) initialOperations(ctx context) ([]Operation, error) {
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

func (s *asyncHalvingSearch) spawn(ctx context) (Operation, error) {
	id, err := ctx.create()
	if err != nil {
		return nil, err
	}
	s.created++
	s.outstanding++
	s.trialRung[id] = 0
	s.seq[id] = s.nextSeq
	s.nextSeq++
	return Evaluate{ID: id, Fidelity: s.rungs[0].fidelity}, nil
}

func (s *asyncHalvingSearch) evaluationCompleted(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	s.outstanding--
	return s.completed(ctx, id, loss)
}

func (s *asyncHalvingSearch) evaluationFailed(ctx context, id trial.ID) ([]Operation, error) {
	s.outstanding--
	s.earlyExit[id] = true
	return s.completed(ctx, id, failedLoss)
}

func (s *asyncHalvingSearch) completed(ctx context, id trial.ID, loss float64) ([]Operation, error) {
	s.completions++
	ri := s.trialRung[id]

	if ri == s.ladder.Top() {
		if !s.earlyExit[id] {
			if err := ctx.registry.SetStatus(id, trial.Done); err != nil {
				return nil, errors.Wrapf(err, "finishing trial %d", id)
			}
		}
		return s.refill(ctx)
	}

	var ops []Operation
	for _, pid := range s.rungs[ri].insert(id, loss, s.seq[id], s.ladder.Eta) {
		s.trialRung[pid] = ri + 1
		if s.earlyExit[pid] {
			// Promoted on the strength of an even worse cohort; complete the
			// next rung with the stand-in loss instead of dispatching.
			more, err := s.completed(ctx, pid, failedLoss)
			if err != nil {
				return nil, err
			}
			ops = append(ops, more...)
			continue
		}
		if err := ctx.registry.SetStatus(pid, trial.Promoted); err != nil {
			return nil, errors.Wrapf(err, "promoting trial %d", pid)
		}
		s.outstanding++
		ops = append(ops, Evaluate{ID: pid, Fidelity: s.rungs[ri+1].fidelity})
	}
	if len(ops) > 0 {
		return ops, nil
	}
	return s.refill(ctx)
}

// refill fills the freed slot with a new bottom-rung trial, or winds the
// search down once the trial budget is spent and nothing is in flight.
func (s *asyncHalvingSearch) refill(ctx context) ([]Operation, error) {
	if s.created < s.config.MaxTrials && s.outstanding < s.maxConcurrent() {
		op, err := s.spawn(ctx)
		if err != nil {
			return nil, err
		}
		return []Operation{op}, nil
	}
	if s.outstanding == 0 && !s.shutdown {
		if err := s.closeOut(ctx); err != nil {
			return nil, err
		}
		s.shutdown = true
		return []Operation{Shutdown{}}, nil
	}
	return nil, nil
}

// closeOut terminates every trial still parked on a rung awaiting a
// promotion that can no longer come.
func (s *asyncHalvingSearch) closeOut(ctx context) error {
	for _, t := range ctx.registry.Query(func(t trial.Trial) bool {
		return t.Status == trial.CompletedRung
	}) {
		if err := ctx.registry.SetStatus(t.ID, trial.Terminated); err != nil {
			return errors.Wrapf(err, "closing out trial %d", t.ID)
		}
	}
	return nil
}

// insert records the result in the rung's sorted order and returns the
// trials it makes eligible for promotion: the arriving trial itself when it
// lands in the top 1/eta, or the best unpromoted trial when the result grows
// the rung enough to widen the promotion quota.
func (r *asyncRung) insert(id trial.ID, loss float64, seq int, eta float64) []trial.ID {
	oldNumPromote := int(float64(len(r.metrics)) / eta)
	numPromote := int(float64(len(r.metrics)+1) / eta)

	i := sort.Search(len(r.metrics), func(i int) bool {
		m := r.metrics[i]
		if m.loss != loss {
			return m.loss > loss
		}
		return m.seq > seq
	})
	promoteNow := i < numPromote
	r.metrics = append(r.metrics, asyncMetric{})
	copy(r.metrics[i+1:], r.metrics[i:])
	r.metrics[i] = asyncMetric{id: id, loss: loss, seq: seq, promoted: promoteNow}

	if promoteNow {
		return []trial.ID{id}
	}
	if numPromote != oldNumPromote && !r.metrics[oldNumPromote].promoted {
		r.metrics[oldNumPromote].promoted = true
		return []trial.ID{r.metrics[oldNumPromote].id}
	}
	return nil
}

func (s *asyncHalvingSearch) progress() float64 {
	expected := 0.0
	per := float64(s.config.MaxTrials)
	for i := 0; i <= s.ladder.Top(); i++ {
		expected += math.Max(per, 1)
		per /= s.ladder.Eta
	}
	return math.Min(1, float64(s.completions)/expected)
}
