// Package trial is the single source of truth for trial state. Every sampled
// configuration becomes a registry entry addressed by an opaque integer id;
// schedulers and the dispatcher mutate trials only through registry
// operations, never through shared live references.
package trial

import (
	"github.com/mfprior/mfsched/pkg/searchspace"
)

// ID is an arena-style identifier for a trial, assigned by the registry in
// creation order starting at 0. Creation order doubles as the tie-break order
// for promotions.
type ID int

// Status is the lifecycle state of a trial.
type Status string

// The trial lifecycle. Terminated and Done are terminal.
const (
	// Pending is a created trial not yet dispatched.
	Pending Status = "PENDING"
	// Running is a trial with an evaluation in flight.
	Running Status = "RUNNING"
	// CompletedRung is a trial that finished its current rung and awaits a
	// promotion or termination decision.
	CompletedRung Status = "COMPLETED_RUNG"
	// Promoted is a trial selected for the next rung, not yet re-dispatched.
	Promoted Status = "PROMOTED"
	// Terminated is a trial dropped by racing or failed by the benchmark.
	Terminated Status = "TERMINATED"
	// Done is a trial that finished the top rung.
	Done Status = "DONE"
)

var validTransitions = map[Status]map[Status]bool{
	Pending:       {Running: true, Terminated: true},
	Running:       {CompletedRung: true, Terminated: true},
	CompletedRung: {Promoted: true, Terminated: true, Done: true},
	Promoted:      {Running: true, Terminated: true},
	Terminated:    {},
	Done:          {},
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == Terminated || s == Done
}

// Observation is one recorded (fidelity, loss) evaluation result.
type Observation struct {
	Fidelity float64 `json:"fidelity"`
	Loss     float64 `json:"loss"`
}

// Trial is a snapshot of one registry entry. Registry accessors return copies;
// mutating a snapshot has no effect on registry state.
type Trial struct {
	ID     ID                 `json:"id"`
	Config searchspace.Config `json:"config"`
	// Observations are insertion-ordered, one per completed evaluation.
	Observations []Observation `json:"observations"`
	Status       Status        `json:"status"`
	// Failure holds the benchmark failure message for trials terminated by a
	// BenchmarkError; empty otherwise.
	Failure string `json:"failure,omitempty"`
}

// LossAt returns the loss observed at the given fidelity.
func (t Trial) LossAt(fidelity float64) (float64, bool) {
	for _, o := range t.Observations {
		if o.Fidelity == fidelity {
			return o.Loss, true
		}
	}
	return 0, false
}

// HighestFidelity returns the highest fidelity the trial has been evaluated
// at, or 0 if it has no observations.
func (t Trial) HighestFidelity() float64 {
	var best float64
	for _, o := range t.Observations {
		if o.Fidelity > best {
			best = o.Fidelity
		}
	}
	return best
}
