// Package fidelity derives the rung structure that the racing schedulers
// promote trials through: a geometric ladder of fidelity values between the
// benchmark's minimum and maximum fidelity, and the Hyperband brackets over
// that ladder.
package fidelity

import (
	"math"

	"github.com/pkg/errors"
)

// Ladder is the ordered sequence of rung fidelities for a run. It is derived
// once from (min, max, eta) and immutable afterwards.
type Ladder struct {
	Min float64
	Max float64
	Eta float64

	rungs []float64
}

// NewLadder computes the rung values min*eta^i, clipped so the final rung is
// exactly the maximum fidelity. The result is strictly increasing and has at
// least one rung.
func NewLadder(min, max, eta float64) (*Ladder, error) {
	switch {
	case min <= 0:
		return nil, errors.Errorf("min fidelity must be > 0, got %v", min)
	case max < min:
		return nil, errors.Errorf("max fidelity %v below min fidelity %v", max, min)
	case eta <= 1:
		return nil, errors.Errorf("eta must be > 1, got %v", eta)
	}

	var rungs []float64
	for r := min; r < max; r *= eta {
		rungs = append(rungs, r)
	}
	rungs = append(rungs, max)

	return &Ladder{Min: min, Max: max, Eta: eta, rungs: rungs}, nil
}

// Rungs returns a copy of the rung fidelities, lowest first.
func (l *Ladder) Rungs() []float64 {
	out := make([]float64, len(l.rungs))
	copy(out, l.rungs)
	return out
}

// NumRungs returns the number of rungs in the ladder.
func (l *Ladder) NumRungs() int { return len(l.rungs) }

// Rung returns the fidelity value of rung i.
func (l *Ladder) Rung(i int) float64 { return l.rungs[i] }

// Top returns the index of the highest rung.
func (l *Ladder) Top() int { return len(l.rungs) - 1 }

// RungIndex returns the index of the rung with the given fidelity value, or
// -1 if no rung matches.
func (l *Ladder) RungIndex(fid float64) int {
	for i, r := range l.rungs {
		if r == fid {
			return i
		}
	}
	return -1
}

// Bracket describes one Hyperband cohort: the rung it starts racing at and
// the number of configurations it opens with.
type Bracket struct {
	// StartRung is the ladder index the bracket's cohort begins at.
	StartRung int
	// InitialTrials is the cohort size at the starting rung.
	InitialTrials int
}

// Rungs returns the fidelities the bracket races through, from its starting
// rung to the top of the ladder.
func (b Bracket) Rungs(l *Ladder) []float64 {
	return l.rungs[b.StartRung:]
}

// Brackets returns the Hyperband bracket sweep for the ladder. Bracket s
// starts at rung top-s with eta^s initial configurations; brackets are
// ordered most aggressive first (lowest starting rung, largest cohort), the
// order the sweep dispatches them in.
func (l *Ladder) Brackets() []Bracket {
	top := l.Top()
	brackets := make([]Bracket, 0, top+1)
	for s := top; s >= 0; s-- {
		brackets = append(brackets, Bracket{
			StartRung:     top - s,
			InitialTrials: int(math.Round(math.Pow(l.Eta, float64(s)))),
		})
	}
	return brackets
}
