package summary

import (
	"fmt"
	"slices"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Descriptive holds the column statistics reported for a feature.
type Descriptive struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Describe computes descriptive statistics over values. The standard
// deviation is the sample (n-1) estimate.
func Describe(values []float64) (Descriptive, error) {
	if len(values) == 0 {
		return Descriptive{}, &InsufficientSamplesError{Got: 0}
	}

	var (
		d   = Descriptive{Count: len(values)}
		err error
	)
	if d.Mean, err = stats.Mean(values); err != nil {
		return Descriptive{}, fmt.Errorf("mean: %w", err)
	}
	if len(values) > 1 {
		if d.StdDev, err = stats.StandardDeviationSample(values); err != nil {
			return Descriptive{}, fmt.Errorf("standard deviation: %w", err)
		}
	}
	if d.Median, err = stats.Median(values); err != nil {
		return Descriptive{}, fmt.Errorf("median: %w", err)
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	d.Q1 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	d.Q3 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)

	if d.Min, err = stats.Min(values); err != nil {
		return Descriptive{}, fmt.Errorf("min: %w", err)
	}
	if d.Max, err = stats.Max(values); err != nil {
		return Descriptive{}, fmt.Errorf("max: %w", err)
	}
	return d, nil
}
