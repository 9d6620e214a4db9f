package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampler_RejectsBadSettings(t *testing.T) {
	_, err := NewSampler("x", 1)
	assert.Error(t, err)
	_, err = NewSampler("x", 0)
	assert.Error(t, err)
	_, err = NewSamplerWithPrecision("x", 0.95, 0)
	assert.Error(t, err)
	_, err = NewSamplerWithPrecision("x", 0.95, -1)
	assert.Error(t, err)
}

func TestSampler_HistoryAndClear(t *testing.T) {
	s, err := NewSampler("formation_energy", 0.95)
	require.NoError(t, err)
	_, ok := s.Last()
	assert.False(t, ok)

	s.Push(1)
	s.Push(2)
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, 2.0, last)
	assert.Equal(t, []float64{1, 2}, s.Values())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestSampler_MeanExcludesPrefix(t *testing.T) {
	s, err := NewSampler("x", 0.95)
	require.NoError(t, err)
	for _, v := range []float64{100, 100, 1, 2, 3} {
		s.Push(v)
	}
	mean, err := s.Mean(2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, mean)

	_, err = s.Mean(5)
	assert.ErrorIs(t, err, ErrEmptySampler)
}

func TestSampler_PrecisionUnavailable(t *testing.T) {
	s, err := NewSamplerWithPrecision("x", 0.95, 0.1)
	require.NoError(t, err)

	// empty
	_, err = s.CalculatedPrecision(0)
	assert.True(t, errors.Is(err, ErrPrecisionUnavailable))
	assert.True(t, errors.Is(err, ErrEmptySampler))
	assert.False(t, s.IsConverged(0))

	// constant
	for i := 0; i < 10; i++ {
		s.Push(3)
	}
	_, err = s.CalculatedPrecision(0)
	assert.True(t, errors.Is(err, ErrPrecisionUnavailable))
	assert.True(t, errors.Is(err, ErrZeroVariance))
	assert.False(t, s.IsConverged(0))
}

func TestSampler_PrecisionOfIndependentNormalSamples(t *testing.T) {
	// GIVEN 10000 independent unit-normal observations
	s, err := NewSamplerWithPrecision("x", 0.95, 0.05)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10000; i++ {
		s.Push(rng.NormFloat64())
	}

	// THEN the precision is close to 1.96 / sqrt(n)
	p, err := s.CalculatedPrecision(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.96/100, p, 0.004)
	assert.True(t, s.IsConverged(0))
}

func TestSampler_CorrelatedSamplesHaveLargerPrecision(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	indep, _ := NewSampler("indep", 0.95)
	corr, _ := NewSampler("corr", 0.95)
	x := 0.0
	for i := 0; i < 10000; i++ {
		indep.Push(rng.NormFloat64())
		x = 0.9*x + rng.NormFloat64()*math.Sqrt(1-0.81)
		corr.Push(x)
	}
	pi, err := indep.CalculatedPrecision(0)
	require.NoError(t, err)
	pc, err := corr.CalculatedPrecision(0)
	require.NoError(t, err)
	// statistical inefficiency of AR(1) with rho=0.9 is 19
	assert.Greater(t, pc, 3*pi)
}

func TestSampler_WithoutTargetIsConverged(t *testing.T) {
	s, err := NewSampler("x", 0.95)
	require.NoError(t, err)
	assert.True(t, s.IsConverged(0))
}

func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.959964, NormalQuantile(0.95), 1e-5)
	assert.InDelta(t, 2.575829, NormalQuantile(0.99), 1e-5)
}
