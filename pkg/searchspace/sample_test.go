package searchspace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestSampleUniformInBounds(t *testing.T) {
	s := testSpace()
	src := rand.NewSource(1)
	for i := 0; i < 200; i++ {
		c := SampleUniform(s, src)
		require.NoError(t, s.Contains(c), "draw %d: %v", i, c)
	}
}

func TestSamplePriorInBounds(t *testing.T) {
	s := testSpace()
	src := rand.NewSource(2)
	for i := 0; i < 200; i++ {
		c := SamplePrior(s, src)
		require.NoError(t, s.Contains(c), "draw %d: %v", i, c)
	}
}

func TestSampleIsDeterministicPerSeed(t *testing.T) {
	s := testSpace()
	a := SampleUniform(s, rand.NewSource(7))
	b := SampleUniform(s, rand.NewSource(7))
	assert.Equal(t, a, b)
}

// Prior draws should concentrate near the prior value relative to uniform
// draws. The margins are generous; this is a sanity check, not a statistics
// exam.
func TestPriorConcentration(t *testing.T) {
	s := SearchSpace{
		Name: "prior",
		Params: map[string]Hyperparameter{
			"x": {Double: &DoubleHyperparameter{
				Minval: 0, Maxval: 1,
				Prior: &Prior{Val: 0.2, Confidence: 0.9},
			}},
		},
		MinFidelity: 1,
		MaxFidelity: 10,
	}

	src := rand.NewSource(3)
	const n = 500
	var meanDist float64
	for i := 0; i < n; i++ {
		c := SamplePrior(s, src)
		meanDist += math.Abs(c["x"].(float64) - 0.2)
	}
	meanDist /= n
	// Uniform draws would average a distance of about 0.34 from 0.2.
	assert.Less(t, meanDist, 0.15)
}

func TestCategoricalPriorMass(t *testing.T) {
	s := SearchSpace{
		Name: "cat",
		Params: map[string]Hyperparameter{
			"opt": {Categorical: &CategoricalHyperparameter{
				Vals:  []interface{}{"a", "b", "c", "d"},
				Prior: &Prior{Val: "a", Confidence: 0.75},
			}},
		},
		MinFidelity: 1,
		MaxFidelity: 10,
	}

	src := rand.NewSource(4)
	hits := 0
	const n = 1000
	for i := 0; i < n; i++ {
		if SamplePrior(s, src)["opt"] == "a" {
			hits++
		}
	}
	// Expected share is 0.75 + 0.25/4 ~ 0.81.
	assert.Greater(t, hits, 650)
}

func TestPriorlessParamsFallBackToUniform(t *testing.T) {
	s := testSpace()
	src := rand.NewSource(5)
	c := SamplePrior(s, src)
	// Every hyperparameter is present even though only one declares a prior.
	assert.Len(t, c, len(s.Params))
	require.NoError(t, s.Contains(c))
}
