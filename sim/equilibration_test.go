package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckEquilibration_StationarySeries(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	data := make([]float64, 2000)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	// halves of 1000 unit-normal samples differ by ~0.045
	r := CheckEquilibration(data, 0.2)
	assert.True(t, r.IsEquilibrated)
	assert.Equal(t, 0, r.NEquilSamples)
}

func TestCheckEquilibration_ExcludesInitialTransient(t *testing.T) {
	// GIVEN a series that decays linearly from 50 over the first 400 samples
	rng := rand.New(rand.NewSource(22))
	data := make([]float64, 2000)
	for i := range data {
		data[i] = rng.NormFloat64() * 0.1
		if i < 400 {
			data[i] += 50 * float64(400-i) / 400
		}
	}

	// WHEN checked
	r := CheckEquilibration(data, 0.05)

	// THEN the transient is excluded
	assert.True(t, r.IsEquilibrated)
	assert.GreaterOrEqual(t, r.NEquilSamples, 300)
	assert.Less(t, r.NEquilSamples, 400)
}

func TestCheckEquilibration_TooFewSamples(t *testing.T) {
	r := CheckEquilibration([]float64{1, 2, 3}, 0.1)
	assert.False(t, r.IsEquilibrated)
	assert.Equal(t, 0, r.NEquilSamples)
}

func TestCheckEquilibration_ZeroVarianceNeverEquilibrates(t *testing.T) {
	data := make([]float64, 500)
	for i := range data {
		data[i] = 1.5
	}
	assert.False(t, CheckEquilibration(data, 0.1).IsEquilibrated)
}

func TestCheckEquilibration_Trend(t *testing.T) {
	// a steady drift never equilibrates
	data := make([]float64, 1000)
	for i := range data {
		data[i] = float64(i)
	}
	assert.False(t, CheckEquilibration(data, 0.1).IsEquilibrated)
}

func TestCheckEquilibration_RequiresPositivePrecision(t *testing.T) {
	data := []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	assert.True(t, CheckEquilibration(data, 0.1).IsEquilibrated)
	assert.False(t, CheckEquilibration(data, 0).IsEquilibrated)
}
