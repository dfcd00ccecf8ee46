// Package benchmark defines the evaluator contract the dispatcher calls out
// to, plus the synthetic multi-fidelity benchmarks the experiment driver
// ships with. A benchmark is opaque beyond Query: it declares its search
// space (with an optional good or bad prior) and its fidelity bounds, and
// returns a loss for a (configuration, fidelity) pair, deterministically for
// a fixed seed.
package benchmark

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// Result is one benchmark evaluation outcome.
type Result struct {
	Loss     float64
	Cost     float64
	Fidelity float64
}

// Benchmark evaluates configurations at a fidelity within its declared range.
type Benchmark interface {
	Name() string
	Space() searchspace.SearchSpace
	FidelityRange() (min, max float64)
	Query(config searchspace.Config, fidelity float64) (Result, error)
}

// Error is the failure an evaluator reports for an invalid configuration or
// an exhausted resource. It terminates only the affected trial, never the
// run.
type Error struct {
	Benchmark string
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("benchmark %s: %s", e.Benchmark, e.Reason)
}

// IsBenchmarkError reports whether the error is a benchmark evaluation
// failure.
func IsBenchmarkError(err error) bool {
	_, ok := errors.Cause(err).(*Error)
	return ok
}

type constructor func(seed uint64) Benchmark

var registry = map[string]constructor{}

func register(name string, c constructor) {
	registry[name] = c
}

// New resolves a benchmark identifier to a seeded instance. Unknown
// identifiers are an unrecoverable configuration error.
func New(name string, seed uint64) (Benchmark, error) {
	c, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown benchmark %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return c(seed), nil
}

// Names lists the registered benchmark identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
