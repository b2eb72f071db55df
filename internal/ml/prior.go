package ml

import "holdoutbench/internal/common"

// Prior ignores the features and predicts the positive rate observed in
// training for every row.
type Prior struct {
	threshold float64
	rate      float64
	width     int
	fitted    bool
}

// NewPrior creates an unfitted baseline.
func NewPrior(threshold float64) *Prior {
	return &Prior{threshold: threshold}
}

// Rate returns the fitted positive rate.
func (m *Prior) Rate() float64 { return m.rate }

// Fit implements Classifier. A single-class training set is accepted.
func (m *Prior) Fit(x [][]float64, y []int) error {
	width, counts, err := checkTrainingSet(common.ModelPrior, x, y)
	if err != nil {
		return err
	}
	m.rate = float64(counts[1]) / float64(len(y))
	m.width = width
	m.fitted = true
	return nil
}

// PredictProbability implements Classifier.
func (m *Prior) PredictProbability(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, m.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.rate
	}
	return out, nil
}

// PredictLabel implements Classifier.
func (m *Prior) PredictLabel(x [][]float64) ([]int, error) {
	probs, err := m.PredictProbability(x)
	if err != nil {
		return nil, err
	}
	return decide(probs, m.threshold), nil
}
