// Package ml provides the classifiers evaluated by the holdout harness.
// Every model sits behind the Classifier capability interface and is selected
// at configuration time through a Spec, so the harness never inspects a
// concrete model type.
//
// The package ships an L2-regularised logistic regression, a Gaussian naive
// Bayes model and a prior-rate baseline.
package ml

import (
	"errors"
	"fmt"
	"math"

	"holdoutbench/internal/common"
)

// Classifier is a trainable probabilistic binary classifier.
type Classifier interface {
	// Fit trains the model on rows x with binary labels y, replacing any
	// previous state. Failures are reported as *TrainingError.
	Fit(x [][]float64, y []int) error

	// PredictProbability returns P(label=1) for every row.
	PredictProbability(x [][]float64) ([]float64, error)

	// PredictLabel returns hard 0/1 decisions at the model's decision threshold.
	PredictLabel(x [][]float64) ([]int, error)
}

// Factory builds a fresh, unfitted classifier for one iteration.
type Factory func(seed int64) (Classifier, error)

// TrainingError reports that fitting failed. It is terminal for the iteration
// that triggered it but not for the batch.
type TrainingError struct {
	Model  string
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s training failed: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s training failed: %s", e.Model, e.Reason)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// ErrNotFitted is returned by predictions on a model that has not been fitted.
var ErrNotFitted = errors.New("model is not fitted")

// Spec selects and parameterises a classifier variant.
type Spec struct {
	Name          string  `yaml:"name" json:"name"`
	Kind          string  `yaml:"kind" json:"kind"`
	C             float64 `yaml:"c" json:"c"`
	MaxIterations int     `yaml:"maxIterations" json:"max_iterations"`
	ClassWeight   string  `yaml:"classWeight" json:"class_weight"`
	Threshold     float64 `yaml:"threshold" json:"threshold"`
}

// WithDefaults fills zero-valued fields with their defaults.
func (s Spec) WithDefaults() Spec {
	if s.Name == "" {
		s.Name = s.Kind
	}
	if s.C == 0 {
		s.C = common.DefaultInverseRegularize
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = common.DefaultMaxIterations
	}
	if s.ClassWeight == "" {
		s.ClassWeight = common.DefaultClassWeight
	}
	if s.Threshold == 0 {
		s.Threshold = common.DefaultDecisionThreshold
	}
	return s
}

// Validate checks that the spec names a known variant with sane parameters.
func (s Spec) Validate() error {
	switch s.Kind {
	case common.ModelLogisticRegression, common.ModelNaiveBayes, common.ModelPrior:
	default:
		return fmt.Errorf("unknown model kind %q", s.Kind)
	}
	if s.C <= 0 || math.IsNaN(s.C) || math.IsInf(s.C, 0) {
		return fmt.Errorf("model %s: C must be positive and finite, got %v", s.Name, s.C)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("model %s: max iterations must be positive, got %d", s.Name, s.MaxIterations)
	}
	if s.ClassWeight != "balanced" && s.ClassWeight != "none" {
		return fmt.Errorf("model %s: class weight must be balanced or none, got %q", s.Name, s.ClassWeight)
	}
	if s.Threshold <= 0 || s.Threshold >= 1 {
		return fmt.Errorf("model %s: decision threshold must be in (0, 1), got %v", s.Name, s.Threshold)
	}
	return nil
}

// NewFactory returns a Factory for the variant described by spec. All shipped
// models are deterministic, so the seed does not change the fitted parameters.
func NewFactory(spec Spec) (Factory, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return func(int64) (Classifier, error) {
		switch spec.Kind {
		case common.ModelLogisticRegression:
			return NewLogisticRegression(spec.C, spec.MaxIterations, spec.ClassWeight == "balanced", spec.Threshold), nil
		case common.ModelNaiveBayes:
			return NewGaussianNB(spec.Threshold), nil
		default:
			return NewPrior(spec.Threshold), nil
		}
	}, nil
}

// decide thresholds probabilities into hard decisions.
func decide(probs []float64, threshold float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// checkTrainingSet validates shapes and labels and returns the feature width
// and per-class counts.
func checkTrainingSet(model string, x [][]float64, y []int) (width int, counts [2]int, err error) {
	if len(x) == 0 {
		return 0, counts, &TrainingError{Model: model, Reason: "empty training set"}
	}
	if len(x) != len(y) {
		return 0, counts, &TrainingError{Model: model, Reason: fmt.Sprintf("%d rows but %d labels", len(x), len(y))}
	}
	width = len(x[0])
	for i, row := range x {
		if len(row) != width {
			return 0, counts, &TrainingError{Model: model, Reason: fmt.Sprintf("row %d has %d features, expected %d", i, len(row), width)}
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, counts, &TrainingError{Model: model, Reason: fmt.Sprintf("label at row %d is %d", i, y[i])}
		}
		counts[y[i]]++
	}
	return width, counts, nil
}

func checkWidth(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), width)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// log1pExp returns log(1 + e^z) without overflow.
func log1pExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
