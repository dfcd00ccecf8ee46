package benchmark

import (
	"sync"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// Flaky wraps a benchmark so every n-th query fails with a benchmark Error.
// It exists to exercise the dispatcher's failure isolation without touching
// the wrapped benchmark's determinism.
type Flaky struct {
	Wrapped   Benchmark
	FailEvery int

	mu      sync.Mutex
	queries int
}

// NewFlaky returns a benchmark failing every failEvery-th query.
func NewFlaky(wrapped Benchmark, failEvery int) *Flaky {
	return &Flaky{Wrapped: wrapped, FailEvery: failEvery}
}

// Name implements Benchmark.
func (f *Flaky) Name() string { return f.Wrapped.Name() + "-flaky" }

// Space implements Benchmark.
func (f *Flaky) Space() searchspace.SearchSpace { return f.Wrapped.Space() }

// FidelityRange implements Benchmark.
func (f *Flaky) FidelityRange() (float64, float64) { return f.Wrapped.FidelityRange() }

// Query implements Benchmark.
func (f *Flaky) Query(config searchspace.Config, fidelity float64) (Result, error) {
	f.mu.Lock()
	f.queries++
	fail := f.FailEvery > 0 && f.queries%f.FailEvery == 0
	f.mu.Unlock()
	if fail {
		return Result{}, &Error{Benchmark: f.Name(), Reason: "injected failure"}
	}
	return f.Wrapped.Query(config, fidelity)
}
