// Package scoring implements the metric suite used to score a fitted
// classifier on a holdout partition: ROC-AUC, PR-AUC, H-Measure, Recall and
// F1-Score.
//
// Every function is pure and deterministic: identical inputs always produce
// bit-identical outputs.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"holdoutbench/internal/common"
)

// DegenerateLabelsError reports that a metric requiring both classes received
// a single-class label vector.
type DegenerateLabelsError struct {
	Metric    string
	Positives int
	Negatives int
}

func (e *DegenerateLabelsError) Error() string {
	return fmt.Sprintf("%s undefined: labels contain %d positives and %d negatives", e.Metric, e.Positives, e.Negatives)
}

// ErrLengthMismatch is returned when labels and scores/decisions differ in length.
var ErrLengthMismatch = errors.New("labels and predictions differ in length")

// CurvePoint is one operating point of an empirical ROC curve.
type CurvePoint struct {
	Threshold float64
	FPR       float64
	TPR       float64
}

// Scores holds one iteration's metric values. Metrics that could not be
// computed are listed in Unscored with the reason.
type Scores struct {
	Values   map[string]float64
	Unscored map[string]string
}

// Evaluate computes every tracked metric. Degenerate labels mark the affected
// metrics as unscored instead of failing; any other error is returned.
func Evaluate(labels []int, scores []float64, decisions []int, costRatio float64) (Scores, error) {
	out := Scores{
		Values:   make(map[string]float64, len(common.MetricNames)),
		Unscored: make(map[string]string),
	}

	record := func(name string, v float64, err error) error {
		var degenerate *DegenerateLabelsError
		switch {
		case err == nil:
			out.Values[name] = v
		case errors.As(err, &degenerate):
			out.Unscored[name] = err.Error()
		default:
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	v, err := ROCAUC(labels, scores)
	if err := record(common.MetricROCAUC, v, err); err != nil {
		return Scores{}, err
	}
	v, err = PRAUC(labels, scores)
	if err := record(common.MetricPRAUC, v, err); err != nil {
		return Scores{}, err
	}
	v, err = HMeasure(labels, scores, costRatio)
	if err := record(common.MetricHMeasure, v, err); err != nil {
		return Scores{}, err
	}
	v, err = Recall(labels, decisions)
	if err := record(common.MetricRecall, v, err); err != nil {
		return Scores{}, err
	}
	v, err = F1(labels, decisions)
	if err := record(common.MetricF1, v, err); err != nil {
		return Scores{}, err
	}

	return out, nil
}

// ROCAUC returns the probability that a randomly chosen positive scores higher
// than a randomly chosen negative, counting ties as one half.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	pos, neg, err := countClasses(labels, scores)
	if err != nil {
		return 0, err
	}
	if pos == 0 || neg == 0 {
		return 0, &DegenerateLabelsError{Metric: common.MetricROCAUC, Positives: pos, Negatives: neg}
	}

	order := ascending(scores)

	// Mann-Whitney U with average ranks over tied scores
	var rankSum float64
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[order[k]] == 1 {
				rankSum += avgRank
			}
		}
		i = j + 1
	}

	p, q := float64(pos), float64(neg)
	return (rankSum - p*(p+1)/2) / (p * q), nil
}

// PRAUC returns the average precision: the sum over distinct descending
// thresholds of the recall increment times the precision at that threshold.
func PRAUC(labels []int, scores []float64) (float64, error) {
	pos, neg, err := countClasses(labels, scores)
	if err != nil {
		return 0, err
	}
	if pos == 0 || neg == 0 {
		return 0, &DegenerateLabelsError{Metric: common.MetricPRAUC, Positives: pos, Negatives: neg}
	}

	var ap, prevRecall float64
	walkThresholds(labels, scores, func(_ float64, tp, fp int) {
		recall := float64(tp) / float64(pos)
		precision := float64(tp) / float64(tp+fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	})
	return ap, nil
}

// ROCCurve returns the empirical ROC curve, starting at (0, 0) and adding one
// point per distinct score from highest to lowest. The last point is (1, 1).
func ROCCurve(labels []int, scores []float64) ([]CurvePoint, error) {
	pos, neg, err := countClasses(labels, scores)
	if err != nil {
		return nil, err
	}
	if pos == 0 || neg == 0 {
		return nil, &DegenerateLabelsError{Metric: "roc_curve", Positives: pos, Negatives: neg}
	}

	curve := []CurvePoint{{Threshold: math.Inf(1)}}
	walkThresholds(labels, scores, func(threshold float64, tp, fp int) {
		curve = append(curve, CurvePoint{
			Threshold: threshold,
			FPR:       float64(fp) / float64(neg),
			TPR:       float64(tp) / float64(pos),
		})
	})
	return curve, nil
}

// OptimalPoint returns the ROC curve point minimising
// c*FPR + (1-c)*(1-TPR) together with that cost. Ties keep the first point
// reached when sweeping thresholds from highest to lowest.
func OptimalPoint(labels []int, scores []float64, costRatio float64) (CurvePoint, float64, error) {
	if math.IsNaN(costRatio) || costRatio < 0 || costRatio > 1 {
		return CurvePoint{}, 0, fmt.Errorf("cost ratio must be in [0, 1], got %v", costRatio)
	}

	curve, err := ROCCurve(labels, scores)
	if err != nil {
		var degenerate *DegenerateLabelsError
		if errors.As(err, &degenerate) {
			degenerate.Metric = common.MetricHMeasure
		}
		return CurvePoint{}, 0, err
	}

	best := curve[0]
	minCost := math.Inf(1)
	for _, pt := range curve {
		cost := costRatio*pt.FPR + (1-costRatio)*(1-pt.TPR)
		if cost < minCost {
			minCost = cost
			best = pt
		}
	}
	return best, minCost, nil
}

// HMeasure returns 1 - min_t [c*FPR(t) + (1-c)*(1-TPR(t))] over the empirical
// ROC curve. This is the cost-minimisation proxy, not the beta-prior
// H-measure.
func HMeasure(labels []int, scores []float64, costRatio float64) (float64, error) {
	_, minCost, err := OptimalPoint(labels, scores, costRatio)
	if err != nil {
		return 0, err
	}
	return 1 - minCost, nil
}

// Recall returns TP / (TP + FN) for hard decisions, or 0 when there are no
// positive labels.
func Recall(labels []int, decisions []int) (float64, error) {
	c, err := confusion(labels, decisions)
	if err != nil {
		return 0, err
	}
	if c.tp+c.fn == 0 {
		return 0, nil
	}
	return float64(c.tp) / float64(c.tp+c.fn), nil
}

// F1 returns the harmonic mean of precision and recall, defined as 0 when
// both are 0.
func F1(labels []int, decisions []int) (float64, error) {
	c, err := confusion(labels, decisions)
	if err != nil {
		return 0, err
	}
	denom := 2*c.tp + c.fp + c.fn
	if denom == 0 {
		return 0, nil
	}
	return float64(2*c.tp) / float64(denom), nil
}

type confusionCounts struct {
	tp, fp, tn, fn int
}

func confusion(labels []int, decisions []int) (confusionCounts, error) {
	var c confusionCounts
	if len(labels) != len(decisions) {
		return c, ErrLengthMismatch
	}
	for i, y := range labels {
		d := decisions[i]
		if (y != 0 && y != 1) || (d != 0 && d != 1) {
			return c, fmt.Errorf("row %d: label %d / decision %d not binary", i, y, d)
		}
		switch {
		case y == 1 && d == 1:
			c.tp++
		case y == 0 && d == 1:
			c.fp++
		case y == 0 && d == 0:
			c.tn++
		default:
			c.fn++
		}
	}
	return c, nil
}

func countClasses(labels []int, scores []float64) (pos, neg int, err error) {
	if len(labels) != len(scores) {
		return 0, 0, ErrLengthMismatch
	}
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, 0, fmt.Errorf("score at row %d is NaN", i)
		}
	}
	for i, y := range labels {
		switch y {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return 0, 0, fmt.Errorf("label at row %d is %d, expected 0 or 1", i, y)
		}
	}
	return pos, neg, nil
}

// ascending returns row indices ordered by score, ties kept in row order.
func ascending(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] < scores[b]:
			return -1
		case scores[a] > scores[b]:
			return 1
		}
		return 0
	})
	return order
}

// walkThresholds visits every distinct score from highest to lowest with the
// cumulative true and false positive counts at that threshold.
func walkThresholds(labels []int, scores []float64, visit func(threshold float64, tp, fp int)) {
	order := ascending(scores)
	slices.Reverse(order)

	tp, fp := 0, 0
	for i, row := range order {
		if labels[row] == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(order) && scores[order[i+1]] == scores[row] {
			continue
		}
		visit(scores[row], tp, fp)
	}
}
