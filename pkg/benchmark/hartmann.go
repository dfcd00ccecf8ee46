package benchmark

import (
	"fmt"
	"hash/fnv"
	"math"

	"golang.org/x/exp/rand"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// The synthetic family: Hartmann functions with a fidelity axis. Low
// fidelities return a biased, noisier estimate of the true loss; both the
// bias and the noise shrink to zero at the maximum fidelity, so racing at low
// rungs is cheap but unreliable, the regime the multi-fidelity schedulers are
// built for.
const (
	hartmannMinFidelity = 1
	hartmannMaxFidelity = 100
	hartmannBias        = 0.5
	hartmannNoise       = 0.1

	priorConfidence = 0.75
)

type priorKind int

const (
	priorNone priorKind = iota
	priorGood
	priorBad
)

func init() {
	for _, def := range []hartmannDef{hartmann3Def(), hartmann6Def()} {
		def := def
		register(def.name, func(seed uint64) Benchmark {
			return newHartmann(def, priorNone, seed)
		})
		register(def.name+"-prior-good", func(seed uint64) Benchmark {
			return newHartmann(def, priorGood, seed)
		})
		register(def.name+"-prior-bad", func(seed uint64) Benchmark {
			return newHartmann(def, priorBad, seed)
		})
	}
}

type hartmannDef struct {
	name  string
	alpha []float64
	a     [][]float64
	p     [][]float64
	// optimum is the argmin location, the anchor of the good prior.
	optimum []float64
	// pessimum anchors the deliberately misleading bad prior.
	pessimum []float64
}

func hartmann3Def() hartmannDef {
	return hartmannDef{
		name:  "mfhartmann3",
		alpha: []float64{1.0, 1.2, 3.0, 3.2},
		a: [][]float64{
			{3.0, 10, 30},
			{0.1, 10, 35},
			{3.0, 10, 30},
			{0.1, 10, 35},
		},
		p: [][]float64{
			{0.3689, 0.1170, 0.2673},
			{0.4699, 0.4387, 0.7470},
			{0.1091, 0.8732, 0.5547},
			{0.0381, 0.5743, 0.8828},
		},
		optimum:  []float64{0.114614, 0.555649, 0.852547},
		pessimum: []float64{0.95, 0.05, 0.05},
	}
}

func hartmann6Def() hartmannDef {
	return hartmannDef{
		name:  "mfhartmann6",
		alpha: []float64{1.0, 1.2, 3.0, 3.2},
		a: [][]float64{
			{10, 3, 17, 3.5, 1.7, 8},
			{0.05, 10, 17, 0.1, 8, 14},
			{3, 3.5, 1.7, 10, 17, 8},
			{17, 8, 0.05, 10, 0.1, 14},
		},
		p: [][]float64{
			{0.1312, 0.1696, 0.5569, 0.0124, 0.8283, 0.5886},
			{0.2329, 0.4135, 0.8307, 0.3736, 0.1004, 0.9991},
			{0.2348, 0.1451, 0.3522, 0.2883, 0.3047, 0.6650},
			{0.4047, 0.8828, 0.8732, 0.5743, 0.1091, 0.0381},
		},
		optimum:  []float64{0.20169, 0.150011, 0.476874, 0.275332, 0.311652, 0.6573},
		pessimum: []float64{0.95, 0.9, 0.05, 0.9, 0.85, 0.1},
	}
}

type hartmann struct {
	def   hartmannDef
	prior priorKind
	seed  uint64
	space searchspace.SearchSpace
}

func newHartmann(def hartmannDef, prior priorKind, seed uint64) Benchmark {
	params := make(map[string]searchspace.Hyperparameter, len(def.optimum))
	for i := range def.optimum {
		hp := &searchspace.DoubleHyperparameter{Minval: 0, Maxval: 1}
		switch prior {
		case priorGood:
			hp.Prior = &searchspace.Prior{Val: def.optimum[i], Confidence: priorConfidence}
		case priorBad:
			hp.Prior = &searchspace.Prior{Val: def.pessimum[i], Confidence: priorConfidence}
		}
		params[fmt.Sprintf("x%d", i)] = searchspace.Hyperparameter{Double: hp}
	}
	name := def.name
	switch prior {
	case priorGood:
		name += "-prior-good"
	case priorBad:
		name += "-prior-bad"
	}
	return &hartmann{
		def:   def,
		prior: prior,
		seed:  seed,
		space: searchspace.SearchSpace{
			Name:        name,
			Params:      params,
			MinFidelity: hartmannMinFidelity,
			MaxFidelity: hartmannMaxFidelity,
		},
	}
}

func (h *hartmann) Name() string { return h.space.Name }

func (h *hartmann) Space() searchspace.SearchSpace { return h.space }

func (h *hartmann) FidelityRange() (float64, float64) {
	return hartmannMinFidelity, hartmannMaxFidelity
}

func (h *hartmann) Query(config searchspace.Config, fidelity float64) (Result, error) {
	if fidelity < hartmannMinFidelity || fidelity > hartmannMaxFidelity {
		return Result{}, &Error{
			Benchmark: h.Name(),
			Reason:    fmt.Sprintf("fidelity %v outside [%v, %v]", fidelity, hartmannMinFidelity, hartmannMaxFidelity),
		}
	}
	if err := h.space.Contains(config); err != nil {
		return Result{}, &Error{Benchmark: h.Name(), Reason: err.Error()}
	}

	x := make([]float64, len(h.def.optimum))
	for i := range x {
		x[i] = config[fmt.Sprintf("x%d", i)].(float64)
	}

	var value float64
	for i, alpha := range h.def.alpha {
		var inner float64
		for j := range x {
			d := x[j] - h.def.p[i][j]
			inner += h.def.a[i][j] * d * d
		}
		value += alpha * math.Exp(-inner)
	}

	// Fidelity distortion: shrink toward zero at low fidelity and add seeded
	// pseudo-noise, both vanishing at the maximum fidelity.
	frac := (fidelity - hartmannMinFidelity) / (hartmannMaxFidelity - hartmannMinFidelity)
	biased := value * (1 - hartmannBias*(1-frac))
	noise := hartmannNoise * (1 - frac) * h.noise(x, fidelity)

	return Result{
		Loss:     -biased + noise,
		Cost:     fidelity,
		Fidelity: fidelity,
	}, nil
}

// noise returns a standard-normal draw determined entirely by (seed, config,
// fidelity), so repeated queries are reproducible.
func (h *hartmann) noise(x []float64, fidelity float64) float64 {
	hash := fnv.New64a()
	fmt.Fprintf(hash, "%s/%d/%v", h.Name(), h.seed, fidelity)
	for _, v := range x {
		fmt.Fprintf(hash, "/%.12f", v)
	}
	rng := rand.New(rand.NewSource(hash.Sum64()))
	return rng.NormFloat64()
}
