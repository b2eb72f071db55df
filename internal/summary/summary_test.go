package summary

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceInterval(t *testing.T) {
	ci, err := ConfidenceInterval([]float64{1, 2, 3, 4, 5}, 0.95)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, ci.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), ci.StdDev, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), ci.StdErr, 1e-12)
	assert.InDelta(t, 1.9632431614775607, ci.HalfWidth, 1e-9)
	assert.InDelta(t, 3-1.9632431614775607, ci.Lower, 1e-9)
	assert.InDelta(t, 3+1.9632431614775607, ci.Upper, 1e-9)
}

func TestConfidenceInterval_WiderAtHigherLevel(t *testing.T) {
	values := []float64{0.61, 0.58, 0.66, 0.63, 0.59, 0.62}

	ci90, err := ConfidenceInterval(values, 0.90)
	require.NoError(t, err)
	ci99, err := ConfidenceInterval(values, 0.99)
	require.NoError(t, err)

	assert.Equal(t, ci90.Mean, ci99.Mean)
	assert.Less(t, ci90.HalfWidth, ci99.HalfWidth)
}

func TestConfidenceInterval_ZeroVariance(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 0.1
	}

	ci, err := ConfidenceInterval(values, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ci.HalfWidth)
	assert.Equal(t, ci.Mean, ci.Lower)
	assert.Equal(t, ci.Mean, ci.Upper)
}

func TestConfidenceInterval_Errors(t *testing.T) {
	_, err := ConfidenceInterval([]float64{0.5}, 0.95)
	var insufficient *InsufficientSamplesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Got)

	_, err = ConfidenceInterval(nil, 0.95)
	assert.True(t, errors.As(err, &insufficient))

	_, err = ConfidenceInterval([]float64{1, 2}, 1)
	assert.Error(t, err)

	_, err = ConfidenceInterval([]float64{1, math.Inf(1)}, 0.95)
	assert.Error(t, err)
}

func TestReducer_Summarize(t *testing.T) {
	r, err := NewReducer(0.95, []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, r.Add(1, map[string]float64{"a": 1, "b": 0.5}))
	require.NoError(t, r.Add(2, map[string]float64{"a": 2, "b": 0.5}))
	require.NoError(t, r.Add(3, map[string]float64{"a": 3, "b": 0.5, "ignored": 9}))
	assert.Equal(t, 3, r.Len())

	got, err := r.Summarize()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].Metric)
	assert.Equal(t, 3, got[0].N)
	assert.InDelta(t, 2.0, got[0].Mean, 1e-12)
	assert.Equal(t, 1.0, got[0].Min)
	assert.Equal(t, 3.0, got[0].Max)
	assert.Equal(t, 0.95, got[0].Confidence)

	assert.Equal(t, "b", got[1].Metric)
	assert.Equal(t, got[1].Mean, got[1].Lower)
	assert.Equal(t, got[1].Mean, got[1].Upper)
}

func TestReducer_FrozenAfterSummarize(t *testing.T) {
	r, err := NewReducer(0.95, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, r.Add(1, map[string]float64{"a": 1}))
	require.NoError(t, r.Add(2, map[string]float64{"a": 2}))

	first, err := r.Summarize()
	require.NoError(t, err)

	assert.ErrorIs(t, r.Add(3, map[string]float64{"a": 100}), ErrFrozen)

	second, err := r.Summarize()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// callers cannot mutate the stored result
	second[0].Mean = -1
	third, _ := r.Summarize()
	assert.Equal(t, first[0].Mean, third[0].Mean)
}

func TestReducer_DuplicateSeed(t *testing.T) {
	r, err := NewReducer(0.95, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, r.Add(1, map[string]float64{"a": 1}))
	assert.Error(t, r.Add(1, map[string]float64{"a": 1}))
}

func TestReducer_InsufficientSamples(t *testing.T) {
	t.Run("single iteration", func(t *testing.T) {
		r, err := NewReducer(0.95, []string{"a"})
		require.NoError(t, err)
		require.NoError(t, r.Add(1, map[string]float64{"a": 0.7}))

		_, err = r.Summarize()
		var insufficient *InsufficientSamplesError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 1, insufficient.Got)

		// the failure is sticky
		_, again := r.Summarize()
		assert.Equal(t, err, again)
	})

	t.Run("metric mostly unscored", func(t *testing.T) {
		r, err := NewReducer(0.95, []string{"a", "b"})
		require.NoError(t, err)
		require.NoError(t, r.Add(1, map[string]float64{"a": 0.7, "b": 0.1}))
		require.NoError(t, r.Add(2, map[string]float64{"a": 0.8}))
		require.NoError(t, r.Add(3, map[string]float64{"a": 0.9}))

		got, err := r.Summarize()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].Metric)
		assert.InDelta(t, 0.8, got[0].Mean, 1e-12)

		skipped := r.Unsummarized()
		require.Contains(t, skipped, "b")
		assert.Contains(t, skipped["b"], "got 1")
	})

	t.Run("no metric summarizable", func(t *testing.T) {
		r, err := NewReducer(0.95, []string{"a", "b"})
		require.NoError(t, err)
		require.NoError(t, r.Add(1, map[string]float64{"a": 0.7}))
		require.NoError(t, r.Add(2, map[string]float64{"b": 0.1}))

		_, err = r.Summarize()
		var insufficient *InsufficientSamplesError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, "a", insufficient.Metric)
		assert.Len(t, r.Unsummarized(), 2)
	})
}

func TestNewReducer_Validation(t *testing.T) {
	_, err := NewReducer(0, []string{"a"})
	assert.Error(t, err)
	_, err = NewReducer(0.95, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	d, err := Describe([]float64{4, 1, 3, 2, 10})
	require.NoError(t, err)

	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 4.0, d.Mean, 1e-12)
	assert.InDelta(t, 3.0, d.Median, 1e-12)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 10.0, d.Max)
	assert.InDelta(t, math.Sqrt(12.5), d.StdDev, 1e-12)
	assert.LessOrEqual(t, d.Min, d.Q1)
	assert.LessOrEqual(t, d.Q1, d.Median)
	assert.LessOrEqual(t, d.Median, d.Q3)
	assert.LessOrEqual(t, d.Q3, d.Max)

	single, err := Describe([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, 0.0, single.StdDev)

	_, err = Describe(nil)
	assert.Error(t, err)
}
