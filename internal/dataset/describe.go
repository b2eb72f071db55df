package dataset

import (
	"fmt"

	"holdoutbench/internal/summary"
)

// FeatureDescription is the descriptive statistics of one feature column.
type FeatureDescription struct {
	Name string `json:"name"`
	summary.Descriptive
}

// Description summarises a dataset's class balance and feature columns.
type Description struct {
	Name         string               `json:"name"`
	Rows         int                  `json:"rows"`
	Positives    int                  `json:"positives"`
	Negatives    int                  `json:"negatives"`
	PositiveRate float64              `json:"positive_rate"`
	Features     []FeatureDescription `json:"features"`
}

// Describe computes per-feature descriptive statistics for ds.
func Describe(ds *FeatureDataset) (Description, error) {
	negatives, positives := ds.ClassCounts()
	desc := Description{
		Name:         ds.Name(),
		Rows:         ds.Len(),
		Positives:    positives,
		Negatives:    negatives,
		PositiveRate: float64(positives) / float64(ds.Len()),
		Features:     make([]FeatureDescription, 0, ds.Width()),
	}
	for j, name := range ds.FeatureNames() {
		d, err := summary.Describe(ds.Column(j))
		if err != nil {
			return Description{}, fmt.Errorf("feature %s: %w", name, err)
		}
		desc.Features = append(desc.Features, FeatureDescription{Name: name, Descriptive: d})
	}
	return desc, nil
}
