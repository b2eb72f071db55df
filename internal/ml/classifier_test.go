package ml

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdoutbench/internal/common"
)

// blobs returns two Gaussian clusters centred at -shift and +shift on every
// feature. Class 1 is the positive cluster.
func blobs(seed uint64, n0, n1, width int, shift float64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, 7))
	x := make([][]float64, 0, n0+n1)
	y := make([]int, 0, n0+n1)
	for c, n := range []int{n0, n1} {
		centre := -shift
		if c == 1 {
			centre = shift
		}
		for i := 0; i < n; i++ {
			row := make([]float64, width)
			for j := range row {
				row[j] = centre + rng.NormFloat64()
			}
			x = append(x, row)
			y = append(y, c)
		}
	}
	return x, y
}

func TestNewFactory_Defaults(t *testing.T) {
	factory, err := NewFactory(Spec{Kind: common.ModelLogisticRegression})
	require.NoError(t, err)

	model, err := factory(1)
	require.NoError(t, err)
	lr, ok := model.(*LogisticRegression)
	require.True(t, ok)
	assert.Equal(t, 1.0, lr.c)
	assert.Equal(t, 100, lr.maxIter)
	assert.True(t, lr.balanced)
	assert.Equal(t, 0.5, lr.threshold)
}

func TestNewFactory_Kinds(t *testing.T) {
	tests := []struct {
		kind string
		want Classifier
	}{
		{common.ModelLogisticRegression, &LogisticRegression{}},
		{common.ModelNaiveBayes, &GaussianNB{}},
		{common.ModelPrior, &Prior{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			factory, err := NewFactory(Spec{Kind: tt.kind})
			require.NoError(t, err)
			model, err := factory(42)
			require.NoError(t, err)
			assert.IsType(t, tt.want, model)
		})
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"unknown kind", Spec{Kind: "svm"}},
		{"negative C", Spec{Kind: common.ModelLogisticRegression, C: -1}},
		{"bad class weight", Spec{Kind: common.ModelLogisticRegression, ClassWeight: "auto"}},
		{"threshold above one", Spec{Kind: common.ModelPrior, Threshold: 1.5}},
		{"negative iterations", Spec{Kind: common.ModelLogisticRegression, MaxIterations: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestLogisticRegression_Separates(t *testing.T) {
	x, y := blobs(1, 120, 80, 3, 1.5)
	model := NewLogisticRegression(1, 100, true, 0.5)
	require.NoError(t, model.Fit(x, y))

	probs, err := model.PredictProbability(x)
	require.NoError(t, err)
	labels, err := model.PredictLabel(x)
	require.NoError(t, err)

	correct := 0
	for i := range y {
		assert.True(t, probs[i] > 0 && probs[i] < 1)
		if labels[i] == y[i] {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(y)), 0.9)

	coef, _ := model.Coefficients()
	for _, w := range coef {
		assert.Greater(t, w, 0.0)
	}
}

func TestLogisticRegression_StationaryPoint(t *testing.T) {
	x, y := blobs(2, 60, 30, 2, 0.7)
	const c = 0.5
	model := NewLogisticRegression(c, 100, true, 0.5)
	require.NoError(t, model.Fit(x, y))

	probs, err := model.PredictProbability(x)
	require.NoError(t, err)
	coef, _ := model.Coefficients()

	n := float64(len(y))
	weights := [2]float64{n / (2 * 60), n / (2 * 30)}

	// gradient of the penalised weighted log-loss vanishes at the optimum
	grad := make([]float64, len(coef)+1)
	for i, row := range x {
		r := weights[y[i]] * (probs[i] - float64(y[i]))
		for j, v := range row {
			grad[j] += r * v
		}
		grad[len(coef)] += r
	}
	for j, w := range coef {
		grad[j] += w / c
	}
	for j, g := range grad {
		assert.InDelta(t, 0, g, 1e-5, "gradient component %d", j)
	}
}

func TestLogisticRegression_SymmetricData(t *testing.T) {
	x := [][]float64{{-2}, {-1}, {1}, {2}}
	y := []int{0, 0, 1, 1}

	model := NewLogisticRegression(1, 100, false, 0.5)
	require.NoError(t, model.Fit(x, y))

	coef, intercept := model.Coefficients()
	assert.InDelta(t, 0, intercept, 1e-9)
	assert.Greater(t, coef[0], 0.0)

	probs, err := model.PredictProbability([][]float64{{0}, {-1}, {1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[0], 1e-9)
	assert.InDelta(t, 1, probs[1]+probs[2], 1e-9)
}

func TestLogisticRegression_Deterministic(t *testing.T) {
	x, y := blobs(3, 50, 50, 4, 0.5)

	a := NewLogisticRegression(1, 100, true, 0.5)
	b := NewLogisticRegression(1, 100, true, 0.5)
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))

	pa, _ := a.PredictProbability(x)
	pb, _ := b.PredictProbability(x)
	assert.Equal(t, pa, pb)
}

func TestClassifiers_TrainingErrors(t *testing.T) {
	singleClass := [][]float64{{1}, {2}, {3}}
	allZero := []int{0, 0, 0}

	models := map[string]Classifier{
		common.ModelLogisticRegression: NewLogisticRegression(1, 100, true, 0.5),
		common.ModelNaiveBayes:         NewGaussianNB(0.5),
	}
	for name, model := range models {
		t.Run(name, func(t *testing.T) {
			var trainErr *TrainingError

			err := model.Fit(singleClass, allZero)
			require.True(t, errors.As(err, &trainErr))
			assert.Equal(t, name, trainErr.Model)

			err = model.Fit(nil, nil)
			assert.True(t, errors.As(err, &trainErr))

			err = model.Fit([][]float64{{1}, {2, 3}}, []int{0, 1})
			assert.True(t, errors.As(err, &trainErr))

			err = model.Fit([][]float64{{1}, {2}}, []int{0, 2})
			assert.True(t, errors.As(err, &trainErr))
		})
	}
}

func TestClassifiers_PredictBeforeFit(t *testing.T) {
	for _, model := range []Classifier{
		NewLogisticRegression(1, 100, true, 0.5),
		NewGaussianNB(0.5),
		NewPrior(0.5),
	} {
		_, err := model.PredictProbability([][]float64{{1}})
		assert.ErrorIs(t, err, ErrNotFitted)
		_, err = model.PredictLabel([][]float64{{1}})
		assert.ErrorIs(t, err, ErrNotFitted)
	}
}

func TestClassifiers_WidthMismatch(t *testing.T) {
	x, y := blobs(4, 20, 20, 2, 1)
	for _, model := range []Classifier{
		NewLogisticRegression(1, 100, true, 0.5),
		NewGaussianNB(0.5),
		NewPrior(0.5),
	} {
		require.NoError(t, model.Fit(x, y))
		_, err := model.PredictProbability([][]float64{{1, 2, 3}})
		assert.Error(t, err)
	}
}

func TestGaussianNB_Separates(t *testing.T) {
	x, y := blobs(5, 100, 100, 2, 2)
	model := NewGaussianNB(0.5)
	require.NoError(t, model.Fit(x, y))

	probs, err := model.PredictProbability([][]float64{{-2, -2}, {2, 2}, {0, 0}})
	require.NoError(t, err)
	assert.Less(t, probs[0], 0.01)
	assert.Greater(t, probs[1], 0.99)
	assert.InDelta(t, 0.5, probs[2], 0.25)

	labels, err := model.PredictLabel([][]float64{{-2, -2}, {2, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, labels)
}

func TestGaussianNB_ConstantFeature(t *testing.T) {
	x := [][]float64{{1, 5}, {2, 5}, {8, 5}, {9, 5}}
	y := []int{0, 0, 1, 1}

	model := NewGaussianNB(0.5)
	require.NoError(t, model.Fit(x, y))

	probs, err := model.PredictProbability(x)
	require.NoError(t, err)
	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
	}
	assert.Less(t, probs[0], 0.5)
	assert.Greater(t, probs[3], 0.5)
}

func TestPrior(t *testing.T) {
	x := make([][]float64, 1000)
	y := make([]int, 1000)
	for i := range x {
		x[i] = []float64{float64(i)}
		if i < 450 {
			y[i] = 1
		}
	}

	model := NewPrior(0.5)
	require.NoError(t, model.Fit(x, y))
	assert.InDelta(t, 0.45, model.Rate(), 1e-12)

	probs, err := model.PredictProbability(x[:3])
	require.NoError(t, err)
	assert.Equal(t, []float64{0.45, 0.45, 0.45}, probs)

	labels, err := model.PredictLabel(x[:3])
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, labels)

	low := NewPrior(0.4)
	require.NoError(t, low.Fit(x, y))
	labels, err = low.PredictLabel(x[:2])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, labels)

	// a single-class training set is fine for the baseline
	require.NoError(t, model.Fit(x[500:], y[500:]))
	assert.Equal(t, 0.0, model.Rate())
}
