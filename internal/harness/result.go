package harness

import (
	"time"

	"holdoutbench/internal/summary"
)

// IterationResult is one seed's successful evaluation.
type IterationResult struct {
	Seed      int64              `json:"seed"`
	TrainSize int                `json:"train_size"`
	TestSize  int                `json:"test_size"`
	Metrics   map[string]float64 `json:"metrics"`
	Unscored  map[string]string  `json:"unscored,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// IterationFailure records a seed whose training or prediction failed.
type IterationFailure struct {
	Seed  int64  `json:"seed"`
	State State  `json:"state"`
	Error string `json:"error"`
}

// ConfigurationResult is the terminal outcome of one stage × model
// configuration.
type ConfigurationResult struct {
	Stage     string                  `json:"stage"`
	Model     string                  `json:"model"`
	Status    State                   `json:"status"`
	Err       error                   `json:"-"`
	Error     string                  `json:"error,omitempty"`
	Summaries []summary.MetricSummary `json:"summaries,omitempty"`
	// Unsummarized maps metrics with fewer than two scored seeds to the reason.
	Unsummarized map[string]string  `json:"unsummarized,omitempty"`
	Iterations   []IterationResult  `json:"iterations"`
	Failures     []IterationFailure `json:"failures,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// NewAbortedResult builds the result of a configuration that could not start,
// for example because its dataset failed to load.
func NewAbortedResult(stage, model string, err error) *ConfigurationResult {
	now := time.Now()
	return &ConfigurationResult{
		Stage:      stage,
		Model:      model,
		Status:     StateAborted,
		Err:        err,
		Error:      err.Error(),
		StartedAt:  now,
		FinishedAt: now,
	}
}

// Summary returns the summary for metric, if the configuration completed.
func (r *ConfigurationResult) Summary(metric string) (summary.MetricSummary, bool) {
	for _, s := range r.Summaries {
		if s.Metric == metric {
			return s, true
		}
	}
	return summary.MetricSummary{}, false
}

// Key identifies the configuration as stage/model.
func (r *ConfigurationResult) Key() string {
	return r.Stage + "/" + r.Model
}
