// Package check provides the validation helpers used by configuration types.
// A type exposes its invariants through the Validatable interface; Validate
// collapses the violations into a single error.
package check

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Validatable is implemented by anything that has fields that should be
// validated.
type Validatable interface {
	Validate() []error
}

// Validate returns an error aggregating every failed check of the provided
// values, or nil if all checks pass.
func Validate(vs ...Validatable) error {
	var merr *multierror.Error
	for _, v := range vs {
		for _, err := range v.Validate() {
			if err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}
	return merr.ErrorOrNil()
}

// GreaterThan checks that the first argument is greater than the second.
func GreaterThan[T constraints.Ordered](actual, expected T, msg string) error {
	if actual > expected {
		return nil
	}
	return errors.Errorf("%s: %v <= %v", msg, actual, expected)
}

// GreaterThanOrEqualTo checks that the first argument is greater than or equal
// to the second.
func GreaterThanOrEqualTo[T constraints.Ordered](actual, expected T, msg string) error {
	if actual >= expected {
		return nil
	}
	return errors.Errorf("%s: %v < %v", msg, actual, expected)
}

// LessThan checks that the first argument is less than the second.
func LessThan[T constraints.Ordered](actual, expected T, msg string) error {
	if actual < expected {
		return nil
	}
	return errors.Errorf("%s: %v >= %v", msg, actual, expected)
}

// Equal checks that the two arguments are equal.
func Equal[T comparable](actual, expected T, msg string) error {
	if actual == expected {
		return nil
	}
	return errors.Errorf("%s: %v != %v", msg, actual, expected)
}

// NotEmpty checks that the string is non-empty.
func NotEmpty(actual, msg string) error {
	if actual != "" {
		return nil
	}
	return errors.New(msg)
}

// True checks that the condition holds.
func True(cond bool, msg string) error {
	if cond {
		return nil
	}
	return errors.New(msg)
}
