package searchspace

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxTruncDraws bounds rejection sampling from a truncated prior before
// falling back to clamping.
const maxTruncDraws = 16

// SampleUniform draws a configuration with every hyperparameter sampled
// independently and uniformly from its bounds or category set.
func SampleUniform(s SearchSpace, src rand.Source) Config {
	rng := rand.New(src)
	out := make(Config, len(s.Params))
	s.Each(func(name string, p Hyperparameter) {
		out[name] = sampleOne(p, rng)
	})
	return out
}

// SamplePrior draws a configuration from the declared priors. Hyperparameters
// without a prior fall back to a uniform draw, so a partially specified prior
// still yields a complete configuration.
func SamplePrior(s SearchSpace, src rand.Source) Config {
	rng := rand.New(src)
	out := make(Config, len(s.Params))
	s.Each(func(name string, p Hyperparameter) {
		out[name] = samplePriorOne(p, src, rng)
	})
	return out
}

func sampleOne(h Hyperparameter, rng *rand.Rand) interface{} {
	switch {
	case h.Int != nil:
		p := h.Int
		return p.Minval + rng.Intn(p.Maxval-p.Minval+1)
	case h.Double != nil:
		p := h.Double
		return p.Minval + (p.Maxval-p.Minval)*rng.Float64()
	case h.Log != nil:
		p := h.Log
		return math.Pow(p.Base, p.Minval+(p.Maxval-p.Minval)*rng.Float64())
	case h.Categorical != nil:
		p := h.Categorical
		return p.Vals[rng.Intn(len(p.Vals))]
	default:
		panic(fmt.Sprintf("unexpected hyperparameter kind: %+v", h))
	}
}

func samplePriorOne(h Hyperparameter, src rand.Source, rng *rand.Rand) interface{} {
	switch {
	case h.Int != nil:
		p := h.Int
		if p.Prior == nil {
			return sampleOne(h, rng)
		}
		lo, hi := float64(p.Minval), float64(p.Maxval)
		loc := unit(asFloat(p.Prior.Val), lo, hi)
		v := int(math.Round(fromUnit(truncNormal(loc, 1-p.Prior.Confidence, src), lo, hi)))
		return intClamp(v, p.Minval, p.Maxval)
	case h.Double != nil:
		p := h.Double
		if p.Prior == nil {
			return sampleOne(h, rng)
		}
		loc := unit(asFloat(p.Prior.Val), p.Minval, p.Maxval)
		return fromUnit(truncNormal(loc, 1-p.Prior.Confidence, src), p.Minval, p.Maxval)
	case h.Log != nil:
		p := h.Log
		if p.Prior == nil {
			return sampleOne(h, rng)
		}
		// The prior value lives in value space; concentrate around its
		// exponent so the draw stays log-uniform in shape.
		exp := math.Log(asFloat(p.Prior.Val)) / math.Log(p.Base)
		loc := unit(exp, p.Minval, p.Maxval)
		return math.Pow(p.Base, fromUnit(truncNormal(loc, 1-p.Prior.Confidence, src), p.Minval, p.Maxval))
	case h.Categorical != nil:
		p := h.Categorical
		if p.Prior == nil {
			return sampleOne(h, rng)
		}
		if rng.Float64() < p.Prior.Confidence {
			return p.Prior.Val
		}
		return p.Vals[rng.Intn(len(p.Vals))]
	default:
		panic(fmt.Sprintf("unexpected hyperparameter kind: %+v", h))
	}
}

// truncNormal draws from a normal centered at loc in unit space, truncated to
// [0, 1] by rejection with a clamped fallback.
func truncNormal(loc, sigma float64, src rand.Source) float64 {
	dist := distuv.Normal{Mu: loc, Sigma: sigma, Src: src}
	for i := 0; i < maxTruncDraws; i++ {
		if v := dist.Rand(); v >= 0 && v <= 1 {
			return v
		}
	}
	return doubleClamp(dist.Rand(), 0, 1)
}

func unit(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return doubleClamp((v-lo)/(hi-lo), 0, 1)
}

func fromUnit(u, lo, hi float64) float64 {
	return lo + u*(hi-lo)
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		panic(fmt.Sprintf("numeric prior value expected, got %T", v))
	}
}

func intClamp(val, minval, maxval int) int {
	switch {
	case val < minval:
		return minval
	case val > maxval:
		return maxval
	default:
		return val
	}
}

func doubleClamp(val, minval, maxval float64) float64 {
	switch {
	case val < minval:
		return minval
	case val > maxval:
		return maxval
	default:
		return val
	}
}
