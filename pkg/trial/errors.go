package trial

import (
	"fmt"

	"github.com/pkg/errors"
)

// DuplicateObservationError reports a second RecordResult call for the same
// (trial, fidelity) pair. It indicates a scheduler bug and is fatal to the
// run.
type DuplicateObservationError struct {
	Trial    ID
	Fidelity float64
}

func (e *DuplicateObservationError) Error() string {
	return fmt.Sprintf("duplicate observation for trial %d at fidelity %v", e.Trial, e.Fidelity)
}

// InvalidTransitionError reports a status change the lifecycle graph does not
// permit. It indicates a scheduler bug and is fatal to the run.
type InvalidTransitionError struct {
	Trial ID
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for trial %d", e.From, e.To, e.Trial)
}

// NotFoundError reports a reference to an id the registry never issued.
type NotFoundError struct {
	Trial ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown trial id %d", e.Trial)
}

// IsDuplicateObservation reports whether the error is a
// DuplicateObservationError.
func IsDuplicateObservation(err error) bool {
	_, ok := errors.Cause(err).(*DuplicateObservationError)
	return ok
}

// IsInvalidTransition reports whether the error is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	_, ok := errors.Cause(err).(*InvalidTransitionError)
	return ok
}
