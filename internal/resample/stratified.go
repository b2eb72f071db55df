// Package resample provides deterministic, seed-indexed stratified train/test
// partitioning for the repeated-holdout harness.
//
// A partition is a pure function of (labels, holdout fraction, seed): the same
// inputs always yield the same index sets, and the class proportions of each
// side match the full label vector within rounding.
package resample

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

// pcgStream fixes the second PCG word so that the seed alone selects the stream.
const pcgStream = 0x9e3779b97f4a7c15

// InvalidPartitionError reports that stratification is impossible for the
// requested fraction given the class counts. It is structural: retrying with a
// different seed cannot help.
type InvalidPartitionError struct {
	Fraction float64
	Class    int
	Count    int
	Reason   string
}

func (e *InvalidPartitionError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("invalid partition (fraction %.4f): class %d with %d samples: %s", e.Fraction, e.Class, e.Count, e.Reason)
	}
	return fmt.Sprintf("invalid partition (fraction %.4f): %s", e.Fraction, e.Reason)
}

// Partition holds disjoint train and test row indices, each sorted ascending.
type Partition struct {
	Seed  int64
	Train []int
	Test  []int
}

// Split partitions the rows described by labels into train and test sets.
// labels must be binary (0 or 1) and contain both classes.
func Split(labels []int, fraction float64, seed int64) (Partition, error) {
	if math.IsNaN(fraction) || fraction <= 0 || fraction >= 1 {
		return Partition{}, &InvalidPartitionError{Fraction: fraction, Reason: "holdout fraction must be in (0, 1)"}
	}

	n := len(labels)
	byClass := [2][]int{}
	for i, y := range labels {
		if y != 0 && y != 1 {
			return Partition{}, fmt.Errorf("label at row %d is %d, expected 0 or 1", i, y)
		}
		byClass[y] = append(byClass[y], i)
	}
	for class, rows := range byClass {
		if len(rows) == 0 {
			return Partition{}, &InvalidPartitionError{Fraction: fraction, Class: class, Reason: fmt.Sprintf("class %d is absent", class)}
		}
	}

	testSize := int(math.Ceil(fraction*float64(n) - 1e-9))
	quotas := allocate(testSize, n, [2]int{len(byClass[0]), len(byClass[1])})

	for class, rows := range byClass {
		if quotas[class] == 0 {
			return Partition{}, &InvalidPartitionError{Fraction: fraction, Class: class, Count: len(rows), Reason: "too few samples to populate the test partition"}
		}
		if quotas[class] >= len(rows) {
			return Partition{}, &InvalidPartitionError{Fraction: fraction, Class: class, Count: len(rows), Reason: "too few samples to populate the train partition"}
		}
	}

	rng := rand.New(rand.NewPCG(uint64(seed), pcgStream))

	p := Partition{
		Seed:  seed,
		Train: make([]int, 0, n-testSize),
		Test:  make([]int, 0, testSize),
	}
	for class := range byClass {
		rows := slices.Clone(byClass[class])
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		p.Test = append(p.Test, rows[:quotas[class]]...)
		p.Train = append(p.Train, rows[quotas[class]:]...)
	}

	slices.Sort(p.Train)
	slices.Sort(p.Test)
	return p, nil
}

// allocate distributes testSize across classes proportionally to counts using
// the largest-remainder method, so the quotas always sum to testSize.
func allocate(testSize, n int, counts [2]int) [2]int {
	var quotas [2]int
	type remainder struct {
		class int
		frac  float64
	}
	rems := make([]remainder, 0, len(counts))

	assigned := 0
	for class, count := range counts {
		exact := float64(testSize) * float64(count) / float64(n)
		quotas[class] = int(math.Floor(exact))
		assigned += quotas[class]
		rems = append(rems, remainder{class: class, frac: exact - math.Floor(exact)})
	}

	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < testSize; i++ {
		quotas[rems[i%len(rems)].class]++
		assigned++
	}
	return quotas
}

// ClassProportion returns the fraction of positive labels among the given rows.
func ClassProportion(labels []int, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	pos := 0
	for _, r := range rows {
		pos += labels[r]
	}
	return float64(pos) / float64(len(rows))
}
