// Package dispatch runs the evaluation loop: a fixed worker pool pulls
// pending evaluations, queries the benchmark, and feeds results back to the
// searcher for the next racing decisions. The dispatcher owns the budget and
// all trial status writes that bracket an evaluation.
package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mfprior/mfsched/pkg/benchmark"
	"github.com/mfprior/mfsched/pkg/scheduler"
	"github.com/mfprior/mfsched/pkg/searchspace"
	"github.com/mfprior/mfsched/pkg/trial"
)

// Config assembles a dispatcher.
type Config struct {
	Searcher  *scheduler.Searcher
	Benchmark benchmark.Benchmark
	Registry  *trial.Registry
	Budget    *trial.Budget
	// Workers is the number of concurrent evaluations; values below 1 mean 1.
	Workers int
	// Recorder receives one entry per finished evaluation, in dispatch order.
	// Nil means no recording.
	Recorder TrajectoryRecorder
}

// Dispatcher drives one run to completion.
type Dispatcher struct {
	searcher *scheduler.Searcher
	bench    benchmark.Benchmark
	registry *trial.Registry
	budget   *trial.Budget
	workers  int
	recorder TrajectoryRecorder
	log      *logrus.Entry
}

// New returns a dispatcher for the run.
func New(config Config) *Dispatcher {
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Dispatcher{
		searcher: config.Searcher,
		bench:    config.Benchmark,
		registry: config.Registry,
		budget:   config.Budget,
		workers:  workers,
		recorder: recorder,
		log: logrus.WithFields(logrus.Fields{
			"component": "dispatch",
			"benchmark": config.Benchmark.Name(),
		}),
	}
}

type task struct {
	index    int
	id       trial.ID
	config   searchspace.Config
	fidelity float64
	cost     float64
}

type outcome struct {
	task   task
	result benchmark.Result
	err    error
}

// Run executes the search until the method shuts down, the budget runs out,
// or the context is canceled. In-flight evaluations always finish and their
// results are recorded; only new dispatches and new decisions stop.
func (d *Dispatcher) Run(ctx context.Context) error {
	tasks := make(chan task)
	results := make(chan outcome)
	for i := 0; i < d.workers; i++ {
		go d.worker(tasks, results)
	}
	defer close(tasks)

	ops, err := d.searcher.InitialOperations()
	if err != nil {
		return err
	}

	var (
		queue     []scheduler.Evaluate
		pending   *task
		inFlight  int
		nextIndex int
		draining  bool
		fatal     error
		flusher   = newOrderedFlush(d.recorder)
		done      = ctx.Done()
	)
	queue = appendEvaluates(queue, ops, &draining)

	for {
		// Commit the next evaluation once: the budget debit and the Running
		// transition happen exactly when the trial leaves the queue. A
		// committed task is always sent, even when draining starts before a
		// worker picks it up.
		if pending == nil && !draining && len(queue) > 0 && inFlight < d.workers {
			prepared, ok, err := d.prepare(queue[0], nextIndex)
			switch {
			case err != nil:
				fatal, draining = err, true
			case !ok:
				d.log.WithField("remaining", d.budget.Remaining()).Info("budget exhausted, draining")
				draining = true
			default:
				pending = &prepared
				queue = queue[1:]
				nextIndex++
			}
		}

		if inFlight == 0 && pending == nil && (draining || len(queue) == 0) {
			if err := flusher.close(); err != nil && fatal == nil {
				fatal = err
			}
			return fatal
		}

		var taskCh chan task
		var next task
		if pending != nil {
			taskCh, next = tasks, *pending
		}

		select {
		case taskCh <- next:
			pending = nil
			inFlight++
		case out := <-results:
			inFlight--
			ops, err := d.handle(out, draining, flusher)
			if err != nil {
				fatal, draining = err, true
				continue
			}
			queue = appendEvaluates(queue, ops, &draining)
		case <-done:
			if !draining {
				d.log.Info("canceled, draining")
			}
			draining = true
			done = nil
		}
	}
}

func (d *Dispatcher) worker(tasks <-chan task, results chan<- outcome) {
	for t := range tasks {
		res, err := d.bench.Query(t.config, t.fidelity)
		results <- outcome{task: t, result: res, err: err}
	}
}

// prepare debits the budget and moves the trial to Running. A false ok means
// the budget refused the evaluation.
func (d *Dispatcher) prepare(ev scheduler.Evaluate, index int) (task, bool, error) {
	t, err := d.registry.Get(ev.ID)
	if err != nil {
		return task{}, false, errors.Wrapf(err, "dispatching trial %d", ev.ID)
	}
	// A promoted trial resumes from its highest observed fidelity, so only
	// the continuation is charged.
	cost := ev.Fidelity - t.HighestFidelity()
	if !d.budget.TryDebit(cost) {
		return task{}, false, nil
	}
	if err := d.registry.SetStatus(ev.ID, trial.Running); err != nil {
		return task{}, false, errors.Wrapf(err, "starting trial %d", ev.ID)
	}
	d.log.WithFields(logrus.Fields{
		"trial": ev.ID, "fidelity": ev.Fidelity, "cost": cost,
	}).Debug("dispatching evaluation")
	return task{
		index:    index,
		id:       ev.ID,
		config:   t.Config,
		fidelity: ev.Fidelity,
		cost:     cost,
	}, true, nil
}

// handle records an outcome and, outside of draining, asks the searcher for
// follow-up operations.
func (d *Dispatcher) handle(out outcome, draining bool, flusher *orderedFlush) ([]scheduler.Operation, error) {
	t := out.task
	if out.err != nil {
		if !benchmark.IsBenchmarkError(out.err) {
			return nil, errors.Wrapf(out.err, "evaluating trial %d", t.id)
		}
		d.log.WithFields(logrus.Fields{
			"trial": t.id, "fidelity": t.fidelity,
		}).WithError(out.err).Warn("evaluation failed")
		if err := d.registry.RecordFailure(t.id, out.err.Error()); err != nil {
			return nil, err
		}
		if err := d.registry.SetStatus(t.id, trial.Terminated); err != nil {
			return nil, err
		}
		flusher.add(Entry{
			Index:    t.index,
			Trial:    t.id,
			Config:   t.config,
			Fidelity: t.fidelity,
			Cost:     t.cost,
			Failure:  out.err.Error(),
		})
		if draining {
			return nil, nil
		}
		return d.searcher.EvaluationFailed(t.id)
	}

	if err := d.registry.RecordResult(t.id, t.fidelity, out.result.Loss); err != nil {
		return nil, err
	}
	if err := d.registry.SetStatus(t.id, trial.CompletedRung); err != nil {
		return nil, err
	}
	flusher.add(Entry{
		Index:    t.index,
		Trial:    t.id,
		Config:   t.config,
		Fidelity: t.fidelity,
		Loss:     out.result.Loss,
		Cost:     t.cost,
	})
	if draining {
		return nil, nil
	}
	return d.searcher.EvaluationCompleted(t.id, out.result.Loss)
}

// appendEvaluates enqueues Evaluate operations and flips draining on
// Shutdown.
func appendEvaluates(queue []scheduler.Evaluate, ops []scheduler.Operation, draining *bool) []scheduler.Evaluate {
	for _, op := range ops {
		switch op := op.(type) {
		case scheduler.Evaluate:
			queue = append(queue, op)
		case scheduler.Shutdown:
			*draining = true
		}
	}
	return queue
}
