package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"holdoutbench/internal/common"
)

// varSmoothing is the fraction of the largest feature variance added to every
// per-class variance.
const varSmoothing = 1e-9

// GaussianNB is a Gaussian naive Bayes classifier with per-class feature means
// and variances.
type GaussianNB struct {
	threshold float64

	logPrior [2]float64
	mean     [2][]float64
	variance [2][]float64
	fitted   bool
}

// NewGaussianNB creates an unfitted model.
func NewGaussianNB(threshold float64) *GaussianNB {
	return &GaussianNB{threshold: threshold}
}

// Fit implements Classifier.
func (m *GaussianNB) Fit(x [][]float64, y []int) error {
	p, counts, err := checkTrainingSet(common.ModelNaiveBayes, x, y)
	if err != nil {
		return err
	}
	if counts[0] == 0 || counts[1] == 0 {
		return &TrainingError{Model: common.ModelNaiveBayes, Reason: "training labels contain a single class"}
	}

	n := len(x)
	column := make([]float64, n)
	perClass := [2][]float64{make([]float64, 0, counts[0]), make([]float64, 0, counts[1])}

	epsilon := 0.0
	for c := 0; c < 2; c++ {
		m.mean[c] = make([]float64, p)
		m.variance[c] = make([]float64, p)
	}
	for j := 0; j < p; j++ {
		perClass[0], perClass[1] = perClass[0][:0], perClass[1][:0]
		for i, row := range x {
			column[i] = row[j]
			perClass[y[i]] = append(perClass[y[i]], row[j])
		}
		if _, v := stat.PopMeanVariance(column, nil); v > epsilon {
			epsilon = v
		}
		for c := 0; c < 2; c++ {
			m.mean[c][j], m.variance[c][j] = stat.PopMeanVariance(perClass[c], nil)
		}
	}

	epsilon *= varSmoothing
	if epsilon == 0 {
		epsilon = varSmoothing
	}
	for c := 0; c < 2; c++ {
		for j := range m.variance[c] {
			m.variance[c][j] += epsilon
		}
		m.logPrior[c] = math.Log(float64(counts[c]) / float64(n))
	}

	m.fitted = true
	return nil
}

// PredictProbability implements Classifier.
func (m *GaussianNB) PredictProbability(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, len(m.mean[0])); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var jll [2]float64
		for c := 0; c < 2; c++ {
			jll[c] = m.logPrior[c]
			for j, v := range row {
				d := v - m.mean[c][j]
				jll[c] -= 0.5 * (math.Log(2*math.Pi*m.variance[c][j]) + d*d/m.variance[c][j])
			}
		}
		out[i] = sigmoid(jll[1] - jll[0])
	}
	return out, nil
}

// PredictLabel implements Classifier.
func (m *GaussianNB) PredictLabel(x [][]float64) ([]int, error) {
	probs, err := m.PredictProbability(x)
	if err != nil {
		return nil, err
	}
	return decide(probs, m.threshold), nil
}
