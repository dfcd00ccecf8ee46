package sampler

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// Surrogate is the capability interface the model-based sampler builds on:
// fit a density model on observed (configuration, loss) pairs, then suggest a
// configuration from the region the model considers promising. Implementations
// keep their numerical internals out of scheduler logic.
type Surrogate interface {
	Fit(obs []Observation) error
	Suggest(src rand.Source) (searchspace.Config, error)
}

// minBandwidth keeps degenerate kernels (all centers equal) sampleable.
const minBandwidth = 1e-3

// KDEConfig tunes the kernel density surrogate.
type KDEConfig struct {
	// TopFraction is the share of best observations forming the "good"
	// density; the rest form the "bad" one.
	TopFraction float64
	// NumCandidates is the number of draws from the good density scored by
	// the good/bad likelihood ratio per suggestion.
	NumCandidates int
}

// KDE is a two-density kernel estimator over the search space, the surrogate
// behind BOHB-style sampling: fit separate densities on the best and the
// remaining observations, then propose configurations maximizing the ratio of
// good to bad likelihood.
type KDE struct {
	space  searchspace.SearchSpace
	config KDEConfig

	good map[string]*paramDensity
	bad  map[string]*paramDensity
}

// NewKDE returns an unfitted KDE surrogate for the space. Zero config fields
// take defaults (TopFraction 0.15, NumCandidates 24).
func NewKDE(space searchspace.SearchSpace, config KDEConfig) *KDE {
	if config.TopFraction <= 0 {
		config.TopFraction = 0.15
	}
	if config.NumCandidates <= 0 {
		config.NumCandidates = 24
	}
	return &KDE{space: space, config: config}
}

// MinObservations returns the smallest observation count the surrogate can be
// fit on: at least two per density.
func (k *KDE) MinObservations() int { return 4 }

// Fit splits the observations into good and bad sets by loss and fits one
// density per hyperparameter per set.
func (k *KDE) Fit(obs []Observation) error {
	if len(obs) < k.MinObservations() {
		return errors.Errorf("kde needs at least %d observations, got %d", k.MinObservations(), len(obs))
	}
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Loss < sorted[j].Loss })

	nGood := int(math.Ceil(k.config.TopFraction * float64(len(sorted))))
	if nGood < 2 {
		nGood = 2
	}
	if nGood > len(sorted)-2 {
		nGood = len(sorted) - 2
	}

	k.good = fitDensities(k.space, sorted[:nGood])
	k.bad = fitDensities(k.space, sorted[nGood:])
	return nil
}

// Suggest draws candidates from the good density and returns the one with the
// highest good/bad likelihood ratio.
func (k *KDE) Suggest(src rand.Source) (searchspace.Config, error) {
	if k.good == nil {
		return nil, errors.New("kde surrogate not fitted")
	}
	rng := rand.New(src)

	var best searchspace.Config
	bestScore := math.Inf(-1)
	for i := 0; i < k.config.NumCandidates; i++ {
		cfg := make(searchspace.Config, k.space.Dim())
		score := 0.0
		k.space.Each(func(name string, p searchspace.Hyperparameter) {
			u := k.good[name].sample(rng)
			cfg[name] = fromUnitValue(p, u)
			score += k.good[name].logProb(u) - k.bad[name].logProb(u)
		})
		if score > bestScore {
			bestScore = score
			best = cfg
		}
	}
	return best, nil
}

// paramDensity is a one-dimensional density over a single hyperparameter:
// Gaussian kernels in unit space for numeric kinds, a smoothed frequency
// table for categorical ones.
type paramDensity struct {
	centers   []float64
	bandwidth float64
	weights   []float64
}

func fitDensities(space searchspace.SearchSpace, obs []Observation) map[string]*paramDensity {
	out := make(map[string]*paramDensity, space.Dim())
	space.Each(func(name string, p searchspace.Hyperparameter) {
		if p.Categorical != nil {
			out[name] = fitCategorical(p.Categorical, obs, name)
			return
		}
		centers := make([]float64, 0, len(obs))
		for _, o := range obs {
			centers = append(centers, toUnitValue(p, o.Config[name]))
		}
		// Silverman's rule; floored so identical centers still spread.
		bw := 1.06 * stat.StdDev(centers, nil) * math.Pow(float64(len(centers)), -0.2)
		if bw < minBandwidth || math.IsNaN(bw) {
			bw = minBandwidth
		}
		out[name] = &paramDensity{centers: centers, bandwidth: bw}
	})
	return out
}

func fitCategorical(p *searchspace.CategoricalHyperparameter, obs []Observation, name string) *paramDensity {
	counts := make([]float64, len(p.Vals))
	for i := range counts {
		counts[i] = 1 // additive smoothing
	}
	total := float64(len(p.Vals))
	for _, o := range obs {
		if i := categoryIndex(p, o.Config[name]); i >= 0 {
			counts[i]++
			total++
		}
	}
	for i := range counts {
		counts[i] /= total
	}
	return &paramDensity{weights: counts}
}

func (d *paramDensity) sample(rng *rand.Rand) float64 {
	if d.weights != nil {
		u := rng.Float64()
		acc := 0.0
		for i, w := range d.weights {
			acc += w
			if u < acc {
				return float64(i)
			}
		}
		return float64(len(d.weights) - 1)
	}
	c := d.centers[rng.Intn(len(d.centers))]
	v := c + d.bandwidth*rng.NormFloat64()
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (d *paramDensity) logProb(u float64) float64 {
	if d.weights != nil {
		i := int(u)
		if i < 0 || i >= len(d.weights) {
			return math.Inf(-1)
		}
		return math.Log(d.weights[i])
	}
	p := 0.0
	for _, c := range d.centers {
		p += distuv.Normal{Mu: c, Sigma: d.bandwidth}.Prob(u)
	}
	p /= float64(len(d.centers))
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}

// toUnitValue maps a configuration value into [0, 1] for density fitting;
// categorical values map to their category index.
func toUnitValue(p searchspace.Hyperparameter, v interface{}) float64 {
	switch {
	case p.Int != nil:
		lo, hi := float64(p.Int.Minval), float64(p.Int.Maxval)
		return clampUnit((numeric(v) - lo) / math.Max(hi-lo, 1))
	case p.Double != nil:
		return clampUnit((numeric(v) - p.Double.Minval) / (p.Double.Maxval - p.Double.Minval))
	case p.Log != nil:
		exp := math.Log(numeric(v)) / math.Log(p.Log.Base)
		return clampUnit((exp - p.Log.Minval) / (p.Log.Maxval - p.Log.Minval))
	case p.Categorical != nil:
		return float64(categoryIndex(p.Categorical, v))
	}
	return 0
}

// fromUnitValue is the inverse of toUnitValue, producing an in-bounds value
// of the hyperparameter's native kind.
func fromUnitValue(p searchspace.Hyperparameter, u float64) interface{} {
	switch {
	case p.Int != nil:
		lo, hi := float64(p.Int.Minval), float64(p.Int.Maxval)
		v := int(math.Round(lo + u*(hi-lo)))
		if v < p.Int.Minval {
			v = p.Int.Minval
		}
		if v > p.Int.Maxval {
			v = p.Int.Maxval
		}
		return v
	case p.Double != nil:
		return p.Double.Minval + u*(p.Double.Maxval-p.Double.Minval)
	case p.Log != nil:
		return math.Pow(p.Log.Base, p.Log.Minval+u*(p.Log.Maxval-p.Log.Minval))
	case p.Categorical != nil:
		i := int(u)
		if i < 0 {
			i = 0
		}
		if i >= len(p.Categorical.Vals) {
			i = len(p.Categorical.Vals) - 1
		}
		return p.Categorical.Vals[i]
	}
	return nil
}

func categoryIndex(p *searchspace.CategoricalHyperparameter, v interface{}) int {
	for i, val := range p.Vals {
		if val == v {
			return i
		}
	}
	return -1
}

func numeric(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
