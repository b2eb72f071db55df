// Package dataset holds the immutable feature matrices evaluated by the
// harness and the providers that load them from files or a remote server.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// FeatureDataset is one stage's feature matrix and binary labels. It is
// immutable after construction and safe to share between goroutines.
type FeatureDataset struct {
	name         string
	featureNames []string
	x            [][]float64
	y            []int
	counts       [2]int
}

// New validates and copies the inputs into a FeatureDataset. When
// featureNames is nil the features are named feature_0, feature_1, ...
func New(name string, featureNames []string, x [][]float64, y []int) (*FeatureDataset, error) {
	if len(x) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("dataset %s: %d rows but %d labels", name, len(x), len(y))
	}

	width := len(x[0])
	if width == 0 {
		return nil, fmt.Errorf("dataset %s: rows have no features", name)
	}
	if featureNames == nil {
		featureNames = make([]string, width)
		for j := range featureNames {
			featureNames[j] = fmt.Sprintf("feature_%d", j)
		}
	}
	if len(featureNames) != width {
		return nil, fmt.Errorf("dataset %s: %d feature names for %d features", name, len(featureNames), width)
	}

	ds := &FeatureDataset{
		name:         name,
		featureNames: append([]string(nil), featureNames...),
		x:            make([][]float64, len(x)),
		y:            append([]int(nil), y...),
	}
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("dataset %s: row %d has %d features, expected %d", name, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("dataset %s: row %d feature %s is not finite", name, i, featureNames[j])
			}
		}
		ds.x[i] = append([]float64(nil), row...)

		switch y[i] {
		case 0, 1:
			ds.counts[y[i]]++
		default:
			return nil, fmt.Errorf("dataset %s: label at row %d is %d, expected 0 or 1", name, i, y[i])
		}
	}
	if ds.counts[0] == 0 || ds.counts[1] == 0 {
		return nil, fmt.Errorf("dataset %s: both classes must be present (negatives=%d, positives=%d)", name, ds.counts[0], ds.counts[1])
	}
	return ds, nil
}

// Name returns the stage name.
func (d *FeatureDataset) Name() string { return d.name }

// Len returns the number of rows.
func (d *FeatureDataset) Len() int { return len(d.y) }

// Width returns the number of features.
func (d *FeatureDataset) Width() int { return len(d.featureNames) }

// FeatureNames returns a copy of the feature names.
func (d *FeatureDataset) FeatureNames() []string {
	return append([]string(nil), d.featureNames...)
}

// Labels returns a copy of the label vector.
func (d *FeatureDataset) Labels() []int {
	return append([]int(nil), d.y...)
}

// ClassCounts returns the number of negatives and positives.
func (d *FeatureDataset) ClassCounts() (negatives, positives int) {
	return d.counts[0], d.counts[1]
}

// Column returns a copy of feature j.
func (d *FeatureDataset) Column(j int) []float64 {
	out := make([]float64, len(d.x))
	for i, row := range d.x {
		out[i] = row[j]
	}
	return out
}

// Subset returns the rows and labels at the given indices. The returned rows
// share storage with the dataset and must not be modified.
func (d *FeatureDataset) Subset(indices []int) ([][]float64, []int, error) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for k, i := range indices {
		if i < 0 || i >= len(d.x) {
			return nil, nil, fmt.Errorf("dataset %s: index %d out of range [0, %d)", d.name, i, len(d.x))
		}
		x[k] = d.x[i]
		y[k] = d.y[i]
	}
	return x, y, nil
}
