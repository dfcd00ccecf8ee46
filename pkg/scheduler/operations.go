package scheduler

import (
	"fmt"

	"github.com/mfprior/mfsched/pkg/trial"
)

// Operation is the base interface for the decisions a search method hands
// back to the dispatcher. Trial state changes are not operations; methods
// apply those directly through the registry.
type Operation interface{}

// Evaluate asks the dispatcher to run the trial at the given fidelity.
type Evaluate struct {
	ID       trial.ID
	Fidelity float64
}

func (e Evaluate) String() string {
	return fmt.Sprintf("{Evaluate %d at %v}", e.ID, e.Fidelity)
}

// Shutdown signals that the search method has no further work: every racing
// decision has been made and no new trials will be requested.
type Shutdown struct{}

func (s Shutdown) String() string {
	return "{Shutdown}"
}
