// Package summary reduces per-iteration metric samples to a mean and a
// Student-t confidence interval.
package summary

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// InsufficientSamplesError reports that fewer than two values are available,
// so the standard error (and the interval) is undefined.
type InsufficientSamplesError struct {
	Metric string
	Got    int
}

func (e *InsufficientSamplesError) Error() string {
	if e.Metric == "" {
		return fmt.Sprintf("insufficient samples: need at least 2, got %d", e.Got)
	}
	return fmt.Sprintf("insufficient samples for %s: need at least 2, got %d", e.Metric, e.Got)
}

// ErrFrozen is returned when adding to a reducer that has already been summarized.
var ErrFrozen = errors.New("reducer already summarized")

// MetricSummary is the reduced form of one metric's per-seed sample.
type MetricSummary struct {
	Metric     string  `json:"metric"`
	N          int     `json:"n"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	StdErr     float64 `json:"std_err"`
	HalfWidth  float64 `json:"half_width"`
	Lower      float64 `json:"ci_lower"`
	Upper      float64 `json:"ci_upper"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Confidence float64 `json:"confidence"`
}

// Interval holds a mean and its two-sided confidence bounds.
type Interval struct {
	Mean      float64
	StdDev    float64
	StdErr    float64
	HalfWidth float64
	Lower     float64
	Upper     float64
}

// ConfidenceInterval returns mean ± t_{(1+level)/2, n-1} · s/√n.
func ConfidenceInterval(values []float64, level float64) (Interval, error) {
	if err := validateLevel(level); err != nil {
		return Interval{}, err
	}
	n := len(values)
	if n < 2 {
		return Interval{}, &InsufficientSamplesError{Got: n}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Interval{}, fmt.Errorf("value %d is not finite: %v", i, v)
		}
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return Interval{}, fmt.Errorf("mean: %w", err)
	}

	sd := 0.0
	if !constant(values) {
		sd, err = stats.StandardDeviationSample(values)
		if err != nil {
			return Interval{}, fmt.Errorf("standard deviation: %w", err)
		}
	}

	se := sd / math.Sqrt(float64(n))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	half := se * t.Quantile((1+level)/2)

	return Interval{
		Mean:      mean,
		StdDev:    sd,
		StdErr:    se,
		HalfWidth: half,
		Lower:     mean - half,
		Upper:     mean + half,
	}, nil
}

// Reducer accumulates per-seed metric values for one configuration. It is
// append-only until Summarize is called, after which it is immutable.
type Reducer struct {
	mu         sync.Mutex
	confidence float64
	metrics    []string
	seeds      map[int64]bool
	values     map[string][]float64

	frozen       bool
	summaries    []MetricSummary
	unsummarized map[string]string
	err          error
}

// NewReducer creates a reducer tracking the given metrics in order.
func NewReducer(confidence float64, metrics []string) (*Reducer, error) {
	if err := validateLevel(confidence); err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, errors.New("at least one metric must be tracked")
	}
	r := &Reducer{
		confidence: confidence,
		metrics:    append([]string(nil), metrics...),
		seeds:      make(map[int64]bool),
		values:     make(map[string][]float64, len(metrics)),
	}
	return r, nil
}

// Add records one iteration. Metrics missing from values are treated as
// unscored for that seed; metrics that are not tracked are ignored.
func (r *Reducer) Add(seed int64, values map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if r.seeds[seed] {
		return fmt.Errorf("seed %d already recorded", seed)
	}
	r.seeds[seed] = true

	for _, m := range r.metrics {
		if v, ok := values[m]; ok {
			r.values[m] = append(r.values[m], v)
		}
	}
	return nil
}

// Len returns the number of recorded iterations.
func (r *Reducer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seeds)
}

// Summarize freezes the reducer and returns one summary per tracked metric
// with at least two scored values. Metrics below that are left out and
// reported by Unsummarized; the call fails only when no metric can be
// summarized. Repeated calls return the same result.
func (r *Reducer) Summarize() ([]MetricSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return r.copySummaries(), r.err
	}
	r.frozen = true

	if len(r.seeds) < 2 {
		r.err = &InsufficientSamplesError{Got: len(r.seeds)}
		return nil, r.err
	}

	out := make([]MetricSummary, 0, len(r.metrics))
	r.unsummarized = make(map[string]string)
	var first error
	for _, m := range r.metrics {
		values := r.values[m]
		if len(values) < 2 {
			err := &InsufficientSamplesError{Metric: m, Got: len(values)}
			r.unsummarized[m] = err.Error()
			if first == nil {
				first = err
			}
			continue
		}

		ci, err := ConfidenceInterval(values, r.confidence)
		if err != nil {
			r.err = fmt.Errorf("%s: %w", m, err)
			return nil, r.err
		}
		lo, _ := stats.Min(values)
		hi, _ := stats.Max(values)

		out = append(out, MetricSummary{
			Metric:     m,
			N:          len(values),
			Mean:       ci.Mean,
			StdDev:     ci.StdDev,
			StdErr:     ci.StdErr,
			HalfWidth:  ci.HalfWidth,
			Lower:      ci.Lower,
			Upper:      ci.Upper,
			Min:        lo,
			Max:        hi,
			Confidence: r.confidence,
		})
	}

	if len(out) == 0 {
		r.err = first
		return nil, r.err
	}
	r.summaries = out
	return r.copySummaries(), nil
}

// Unsummarized returns the metrics Summarize left out, with the reason.
func (r *Reducer) Unsummarized() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.unsummarized))
	for m, reason := range r.unsummarized {
		out[m] = reason
	}
	return out
}

func (r *Reducer) copySummaries() []MetricSummary {
	if r.summaries == nil {
		return nil
	}
	return append([]MetricSummary(nil), r.summaries...)
}

func validateLevel(level float64) error {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return fmt.Errorf("confidence level must be in (0, 1), got %v", level)
	}
	return nil
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
