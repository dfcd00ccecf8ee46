// Package searchspace declares the hyperparameter search spaces that the
// schedulers draw configurations from, including the optional priors used by
// the prior-weighted samplers.
package searchspace

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/check"
)

// Config is a sampled configuration, keyed by hyperparameter name.
type Config map[string]interface{}

// Clone returns a shallow copy of the configuration.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// SearchSpace is an ordered set of named hyperparameters plus the bounds of
// the fidelity axis the benchmark can be evaluated at.
type SearchSpace struct {
	Name        string                    `json:"name"`
	Params      map[string]Hyperparameter `json:"params"`
	MinFidelity float64                   `json:"min_fidelity"`
	MaxFidelity float64                   `json:"max_fidelity"`
}

// Each applies the function to each hyperparameter in string order of the
// name, so iteration order (and therefore RNG consumption order) is stable.
func (s SearchSpace) Each(f func(name string, p Hyperparameter)) {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f(k, s.Params[k])
	}
}

// Dim returns the number of hyperparameters in the space.
func (s SearchSpace) Dim() int { return len(s.Params) }

// HasPrior reports whether any hyperparameter declares a prior.
func (s SearchSpace) HasPrior() bool {
	for _, p := range s.Params {
		switch {
		case p.Int != nil && p.Int.Prior != nil:
			return true
		case p.Double != nil && p.Double.Prior != nil:
			return true
		case p.Log != nil && p.Log.Prior != nil:
			return true
		case p.Categorical != nil && p.Categorical.Prior != nil:
			return true
		}
	}
	return false
}

// Validate implements the check.Validatable interface.
func (s SearchSpace) Validate() []error {
	errs := []error{
		check.GreaterThan(s.MaxFidelity, 0.0, "max_fidelity must be > 0"),
		check.GreaterThanOrEqualTo(s.MaxFidelity, s.MinFidelity,
			"max_fidelity must be >= min_fidelity"),
		check.GreaterThan(s.MinFidelity, 0.0, "min_fidelity must be > 0"),
		check.GreaterThan(len(s.Params), 0, "search space must declare at least one hyperparameter"),
	}
	for name, p := range s.Params {
		for _, err := range p.Validate() {
			errs = append(errs, errors.Wrapf(err, "hyperparameter %q", name))
		}
	}
	return errs
}

// Contains checks that every value of the configuration lies within the
// declared bounds (or category set) of its hyperparameter. A violation is
// reported as an OutOfBoundsError.
func (s SearchSpace) Contains(c Config) error {
	for name, p := range s.Params {
		v, ok := c[name]
		if !ok {
			return &OutOfBoundsError{Param: name, Value: nil}
		}
		if err := p.contains(v); err != nil {
			return &OutOfBoundsError{Param: name, Value: v}
		}
	}
	return nil
}

// Hyperparameter is a sum type over the supported hyperparameter kinds.
// Exactly one of the fields must be set.
type Hyperparameter struct {
	Int         *IntHyperparameter         `json:"-"`
	Double      *DoubleHyperparameter      `json:"-"`
	Log         *LogHyperparameter         `json:"-"`
	Categorical *CategoricalHyperparameter `json:"-"`
}

type taggedHyperparameter struct {
	Type        string                     `json:"type"`
	Int         *IntHyperparameter         `json:"int,omitempty"`
	Double      *DoubleHyperparameter      `json:"double,omitempty"`
	Log         *LogHyperparameter         `json:"log,omitempty"`
	Categorical *CategoricalHyperparameter `json:"categorical,omitempty"`
}

// MarshalJSON implements the json.Marshaler interface.
func (h Hyperparameter) MarshalJSON() ([]byte, error) {
	tagged := taggedHyperparameter{
		Int: h.Int, Double: h.Double, Log: h.Log, Categorical: h.Categorical,
	}
	switch {
	case h.Int != nil:
		tagged.Type = "int"
	case h.Double != nil:
		tagged.Type = "double"
	case h.Log != nil:
		tagged.Type = "log"
	case h.Categorical != nil:
		tagged.Type = "categorical"
	default:
		return nil, errors.New("hyperparameter has no kind set")
	}
	return json.Marshal(tagged)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (h *Hyperparameter) UnmarshalJSON(data []byte) error {
	var tagged taggedHyperparameter
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	switch tagged.Type {
	case "int":
		h.Int = tagged.Int
	case "double":
		h.Double = tagged.Double
	case "log":
		h.Log = tagged.Log
	case "categorical":
		h.Categorical = tagged.Categorical
	default:
		return errors.Errorf("unknown hyperparameter type %q", tagged.Type)
	}
	return nil
}

// Validate implements the check.Validatable interface.
func (h Hyperparameter) Validate() []error {
	set := 0
	var errs []error
	if h.Int != nil {
		set++
		errs = append(errs, h.Int.Validate()...)
	}
	if h.Double != nil {
		set++
		errs = append(errs, h.Double.Validate()...)
	}
	if h.Log != nil {
		set++
		errs = append(errs, h.Log.Validate()...)
	}
	if h.Categorical != nil {
		set++
		errs = append(errs, h.Categorical.Validate()...)
	}
	errs = append(errs, check.Equal(set, 1, "exactly one hyperparameter kind must be set"))
	return errs
}

func (h Hyperparameter) contains(v interface{}) error {
	switch {
	case h.Int != nil:
		i, ok := v.(int)
		if !ok || i < h.Int.Minval || i > h.Int.Maxval {
			return errors.Errorf("%v outside [%d, %d]", v, h.Int.Minval, h.Int.Maxval)
		}
	case h.Double != nil:
		f, ok := v.(float64)
		if !ok || f < h.Double.Minval || f > h.Double.Maxval {
			return errors.Errorf("%v outside [%v, %v]", v, h.Double.Minval, h.Double.Maxval)
		}
	case h.Log != nil:
		f, ok := v.(float64)
		lo, hi := h.Log.Bounds()
		if !ok || f < lo || f > hi {
			return errors.Errorf("%v outside [%v, %v]", v, lo, hi)
		}
	case h.Categorical != nil:
		for _, val := range h.Categorical.Vals {
			if val == v {
				return nil
			}
		}
		return errors.Errorf("%v not among declared categories", v)
	}
	return nil
}

// Prior encodes a belief about where good values of a hyperparameter lie. For
// numeric hyperparameters Val is the believed-good value and Confidence in
// (0, 1) controls how concentrated prior-weighted draws are around it; a "bad"
// prior is simply a Val placed in a poor region. For categorical
// hyperparameters Confidence is the probability mass on the prior category.
type Prior struct {
	Val        interface{} `json:"val"`
	Confidence float64     `json:"confidence"`
}

// Validate implements the check.Validatable interface.
func (p Prior) Validate() []error {
	return []error{
		check.GreaterThan(p.Confidence, 0.0, "prior confidence must be in (0, 1)"),
		check.LessThan(p.Confidence, 1.0, "prior confidence must be in (0, 1)"),
	}
}

// IntHyperparameter is an inclusive interval of ints.
type IntHyperparameter struct {
	Minval int    `json:"minval"`
	Maxval int    `json:"maxval"`
	Prior  *Prior `json:"prior,omitempty"`
}

// Validate implements the check.Validatable interface.
func (i IntHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(i.Maxval, i.Minval, "minval is greater than maxval"),
	}
	if i.Prior != nil {
		errs = append(errs, i.Prior.Validate()...)
	}
	return errs
}

// DoubleHyperparameter is an interval of float64s.
type DoubleHyperparameter struct {
	Minval float64 `json:"minval"`
	Maxval float64 `json:"maxval"`
	Prior  *Prior  `json:"prior,omitempty"`
}

// Validate implements the check.Validatable interface.
func (d DoubleHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(d.Maxval, d.Minval, "minval is greater than maxval"),
	}
	if d.Prior != nil {
		errs = append(errs, d.Prior.Validate()...)
	}
	return errs
}

// LogHyperparameter is a log-uniformly distributed interval of float64s.
// The sampled value lies in [base^minval, base^maxval].
type LogHyperparameter struct {
	// Minimum value is `base ^ minval`.
	Minval float64 `json:"minval"`
	// Maximum value is `base ^ maxval`.
	Maxval float64 `json:"maxval"`
	Base   float64 `json:"base"`
	Prior  *Prior  `json:"prior,omitempty"`
}

// Bounds returns the interval of sampled (post-exponentiation) values.
func (h LogHyperparameter) Bounds() (float64, float64) {
	return math.Pow(h.Base, h.Minval), math.Pow(h.Base, h.Maxval)
}

// Validate implements the check.Validatable interface.
func (h LogHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(h.Maxval, h.Minval, "minval is greater than maxval"),
		check.GreaterThan(h.Base, 1.0, "base must be > 1"),
	}
	if h.Prior != nil {
		errs = append(errs, h.Prior.Validate()...)
	}
	return errs
}

// CategoricalHyperparameter is a collection of values (levels) of the category.
type CategoricalHyperparameter struct {
	Vals  []interface{} `json:"vals"`
	Prior *Prior        `json:"prior,omitempty"`
}

// Validate implements the check.Validatable interface.
func (h CategoricalHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(len(h.Vals), 0, "must have at least one category"),
	}
	if h.Prior != nil {
		errs = append(errs, h.Prior.Validate()...)
	}
	return errs
}

// OutOfBoundsError reports a configuration value outside the declared bounds
// of its hyperparameter.
type OutOfBoundsError struct {
	Param string
	Value interface{}
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("configuration value %v out of bounds for hyperparameter %q", e.Value, e.Param)
}

// IsOutOfBounds reports whether the error is an OutOfBoundsError.
func IsOutOfBounds(err error) bool {
	_, ok := errors.Cause(err).(*OutOfBoundsError)
	return ok
}
