package resample

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLabels(pos, neg int) []int {
	total := pos + neg
	labels := make([]int, 0, total)
	for i := 0; i < total; i++ {
		// interleave so classes are not contiguous
		if i%2 == 0 && pos > 0 || neg == 0 {
			labels = append(labels, 1)
			pos--
		} else {
			labels = append(labels, 0)
			neg--
		}
	}
	return labels
}

func TestSplit_SizesAndProportions(t *testing.T) {
	labels := makeLabels(550, 450)

	p, err := Split(labels, 0.2, 1)
	require.NoError(t, err)

	assert.Len(t, p.Test, 200)
	assert.Len(t, p.Train, 800)
	assert.InDelta(t, 0.55, ClassProportion(labels, p.Test), 1e-12)
	assert.InDelta(t, 0.55, ClassProportion(labels, p.Train), 1e-12)
}

func TestMakeLabels(t *testing.T) {
	labels := makeLabels(550, 450)
	require.Len(t, labels, 1000)

	pos := 0
	for _, y := range labels {
		pos += y
	}
	assert.Equal(t, 550, pos)
	assert.Equal(t, []int{1, 0, 1, 0}, labels[:4])
}

func TestSplit_PreservesProportionsAcrossSizes(t *testing.T) {
	for n := 4; n <= 200; n += 7 {
		for _, pos := range []int{1, 2, n / 4, n / 2, n - 2} {
			if pos < 1 || pos >= n {
				continue
			}
			labels := makeLabels(pos, n-pos)
			for _, fraction := range []float64{0.1, 0.2, 0.33, 0.5, 0.8} {
				p, err := Split(labels, fraction, int64(n*31+pos))
				var invalid *InvalidPartitionError
				if errors.As(err, &invalid) {
					continue
				}
				require.NoError(t, err)

				testSize := int(math.Ceil(fraction*float64(n) - 1e-9))
				require.Len(t, p.Test, testSize, "n=%d pos=%d f=%v", n, pos, fraction)
				require.Len(t, p.Train, n-testSize)

				gotPos := 0
				for _, r := range p.Test {
					gotPos += labels[r]
				}
				exact := float64(testSize) * float64(pos) / float64(n)
				assert.LessOrEqual(t, math.Abs(float64(gotPos)-exact), 1.0,
					"n=%d pos=%d f=%v: %d positives in test, expected about %.2f", n, pos, fraction, gotPos, exact)
			}
		}
	}
}

func TestSplit_Disjoint(t *testing.T) {
	labels := makeLabels(37, 23)

	p, err := Split(labels, 0.25, 7)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, r := range append(slices.Clone(p.Train), p.Test...) {
		assert.False(t, seen[r], "row %d appears twice", r)
		seen[r] = true
	}
	assert.Len(t, seen, len(labels))
	assert.True(t, slices.IsSorted(p.Train))
	assert.True(t, slices.IsSorted(p.Test))
}

func TestSplit_Deterministic(t *testing.T) {
	labels := makeLabels(120, 80)

	a, err := Split(labels, 0.2, 42)
	require.NoError(t, err)
	b, err := Split(labels, 0.2, 42)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSplit_SeedsDiffer(t *testing.T) {
	labels := makeLabels(120, 80)
	overall := ClassProportion(labels, indexRange(len(labels)))

	distinct := 0
	first, err := Split(labels, 0.2, 1)
	require.NoError(t, err)

	for seed := int64(2); seed <= 20; seed++ {
		p, err := Split(labels, 0.2, seed)
		require.NoError(t, err)
		if !slices.Equal(p.Test, first.Test) {
			distinct++
		}
		// tolerance of one minority sample
		tol := math.Ceil(1.0/80.0*100) / 100
		assert.InDelta(t, overall, ClassProportion(labels, p.Test), tol)
	}
	assert.Greater(t, distinct, 15)
}

func TestSplit_RoundingKeepsTotals(t *testing.T) {
	tests := []struct {
		name     string
		pos, neg int
		fraction float64
		wantTest int
	}{
		{"ceil test size", 7, 6, 0.2, 3},
		{"float fuzz", 20, 10, 0.1, 3},
		{"uneven", 101, 33, 0.3, 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := makeLabels(tt.pos, tt.neg)
			p, err := Split(labels, tt.fraction, 3)
			require.NoError(t, err)
			assert.Len(t, p.Test, tt.wantTest)
			assert.Len(t, p.Train, len(labels)-tt.wantTest)
		})
	}
}

func TestSplit_InvalidPartition(t *testing.T) {
	tests := []struct {
		name     string
		labels   []int
		fraction float64
	}{
		{"zero fraction", makeLabels(10, 10), 0},
		{"one fraction", makeLabels(10, 10), 1},
		{"single class", makeLabels(10, 0), 0.2},
		{"minority cannot reach test", makeLabels(50, 1), 0.2},
		{"minority cannot keep train", makeLabels(3, 1), 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.labels, tt.fraction, 1)
			require.Error(t, err)
			var invalid *InvalidPartitionError
			assert.True(t, errors.As(err, &invalid), "expected InvalidPartitionError, got %T", err)
		})
	}
}

func TestSplit_NonBinaryLabel(t *testing.T) {
	_, err := Split([]int{0, 1, 2, 1, 0}, 0.2, 1)
	require.Error(t, err)
	var invalid *InvalidPartitionError
	assert.False(t, errors.As(err, &invalid))
}

func indexRange(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
