package harness

import (
	"fmt"
	"math"

	"holdoutbench/internal/common"
)

// Config controls one evaluation batch. It is passed by value and never
// mutated by the engine.
type Config struct {
	Iterations      int
	SeedStart       int64
	HoldoutFraction float64
	ConfidenceLevel float64
	CostRatio       float64
	Parallelism     int
}

// DefaultConfig returns the standard 50-seed, 80/20 configuration.
func DefaultConfig() Config {
	return Config{
		Iterations:      common.DefaultIterations,
		SeedStart:       common.DefaultSeedStart,
		HoldoutFraction: common.DefaultHoldoutFraction,
		ConfidenceLevel: common.DefaultConfidenceLevel,
		CostRatio:       common.DefaultCostRatio,
		Parallelism:     common.DefaultParallelism,
	}
}

// Validate checks every field range.
func (c Config) Validate() error {
	if c.Iterations < 1 || c.Iterations > common.MaxIterations {
		return fmt.Errorf("iterations must be between 1 and %d, got %d", common.MaxIterations, c.Iterations)
	}
	if !inOpenUnit(c.HoldoutFraction) {
		return fmt.Errorf("holdout fraction must be in (0, 1), got %v", c.HoldoutFraction)
	}
	if !inOpenUnit(c.ConfidenceLevel) {
		return fmt.Errorf("confidence level must be in (0, 1), got %v", c.ConfidenceLevel)
	}
	if math.IsNaN(c.CostRatio) || c.CostRatio < 0 || c.CostRatio > 1 {
		return fmt.Errorf("cost ratio must be in [0, 1], got %v", c.CostRatio)
	}
	if c.Parallelism < 1 || c.Parallelism > common.MaxParallelism {
		return fmt.Errorf("parallelism must be between 1 and %d, got %d", common.MaxParallelism, c.Parallelism)
	}
	return nil
}

func inOpenUnit(v float64) bool {
	return !math.IsNaN(v) && v > 0 && v < 1
}
