// Package harness runs the repeated-holdout evaluation: for every seed it
// resamples a stratified partition, fits a fresh classifier, scores it on the
// holdout rows and finally reduces the per-seed metrics to confidence
// intervals.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"holdoutbench/internal/common"
	"holdoutbench/internal/dataset"
	"holdoutbench/internal/ml"
	"holdoutbench/internal/resample"
	"holdoutbench/internal/scoring"
	"holdoutbench/internal/summary"
)

// Job is one stage × model configuration.
type Job struct {
	Stage   string
	Dataset *dataset.FeatureDataset
	Model   ml.Spec

	// Factory overrides the factory derived from Model when set.
	Factory ml.Factory
}

// Engine executes jobs under a fixed Config.
type Engine struct {
	config   Config
	observer Observer
}

// NewEngine validates config and creates an engine reporting to observers.
func NewEngine(config Config, observers ...Observer) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid harness config: %w", err)
	}
	return &Engine{
		config:   config,
		observer: Observers(observers),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// RunAll evaluates independent jobs in parallel, bounded by the configured
// parallelism. It returns once every job reached a terminal state, with
// results in job order.
func (e *Engine) RunAll(ctx context.Context, jobs []Job) []*ConfigurationResult {
	results := make([]*ConfigurationResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(e.config.Parallelism)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = e.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// run holds the mutable bookkeeping of a single configuration.
type run struct {
	engine *Engine
	job    Job
	result *ConfigurationResult
}

// Run evaluates one configuration. Seeds are processed strictly in order.
// The returned result is always in a terminal state.
func (e *Engine) Run(ctx context.Context, job Job) *ConfigurationResult {
	spec := job.Model.WithDefaults()
	r := &run{
		engine: e,
		job:    job,
		result: &ConfigurationResult{
			Stage:      job.Stage,
			Model:      spec.Name,
			Iterations: make([]IterationResult, 0, e.config.Iterations),
			StartedAt:  time.Now(),
		},
	}
	r.emit(Event{State: StateIdle})

	log.Info().
		Str("stage", r.result.Stage).
		Str("model", r.result.Model).
		Int("iterations", e.config.Iterations).
		Msg("Starting configuration")

	if job.Dataset == nil {
		return r.abort(0, errors.New("job has no dataset"))
	}
	factory := job.Factory
	if factory == nil {
		var err error
		if factory, err = ml.NewFactory(spec); err != nil {
			return r.abort(0, err)
		}
	}
	reducer, err := summary.NewReducer(e.config.ConfidenceLevel, common.MetricNames)
	if err != nil {
		return r.abort(0, err)
	}

	labels := job.Dataset.Labels()
	for i := 0; i < e.config.Iterations; i++ {
		seed := e.config.SeedStart + int64(i)
		if err := ctx.Err(); err != nil {
			return r.abort(seed, err)
		}

		it, failure, err := r.iterate(seed, labels, factory)
		switch {
		case err != nil:
			return r.abort(seed, err)
		case failure != nil:
			r.result.Failures = append(r.result.Failures, *failure)
			r.emit(Event{Seed: seed, State: failure.State, Failure: failure})
			continue
		}

		if err := reducer.Add(seed, it.Metrics); err != nil {
			return r.abort(seed, err)
		}
		r.result.Iterations = append(r.result.Iterations, *it)
		r.emit(Event{Seed: seed, State: StateRecorded, Iteration: it})
	}

	r.emit(Event{State: StateReducing})
	if n := len(r.result.Iterations); n < 2 {
		return r.abort(0, &summary.InsufficientSamplesError{Got: n})
	}
	summaries, err := reducer.Summarize()
	if err != nil {
		return r.abort(0, err)
	}

	r.result.Summaries = summaries
	if skipped := reducer.Unsummarized(); len(skipped) > 0 {
		r.result.Unsummarized = skipped
		for metric, reason := range skipped {
			log.Warn().
				Str("stage", r.result.Stage).
				Str("model", r.result.Model).
				Str("metric", metric).
				Str("reason", reason).
				Msg("Metric left unsummarized")
		}
	}
	r.result.Status = StateDone
	r.result.FinishedAt = time.Now()
	r.emit(Event{State: StateDone})

	log.Info().
		Str("stage", r.result.Stage).
		Str("model", r.result.Model).
		Int("succeeded", len(r.result.Iterations)).
		Int("failed", len(r.result.Failures)).
		Dur("elapsed", r.result.FinishedAt.Sub(r.result.StartedAt)).
		Msg("Configuration completed")

	e.observer.OnComplete(r.result)
	return r.result
}

// iterate evaluates one seed. A non-nil error is structural and aborts the
// configuration; a non-nil failure only excludes this seed.
func (r *run) iterate(seed int64, labels []int, factory ml.Factory) (*IterationResult, *IterationFailure, error) {
	start := time.Now()
	cfg := r.engine.config

	r.emit(Event{Seed: seed, State: StateResampling})
	part, err := resample.Split(labels, cfg.HoldoutFraction, seed)
	if err != nil {
		return nil, nil, err
	}
	xTrain, yTrain, err := r.job.Dataset.Subset(part.Train)
	if err != nil {
		return nil, nil, err
	}
	xTest, yTest, err := r.job.Dataset.Subset(part.Test)
	if err != nil {
		return nil, nil, err
	}

	r.emit(Event{Seed: seed, State: StateTraining})
	model, err := factory(seed)
	if err != nil {
		return nil, r.fail(seed, StateTraining, err), nil
	}
	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, r.fail(seed, StateTraining, err), nil
	}

	r.emit(Event{Seed: seed, State: StateScoring})
	probs, err := model.PredictProbability(xTest)
	if err != nil {
		return nil, r.fail(seed, StateScoring, fmt.Errorf("predict probability: %w", err)), nil
	}
	decisions, err := model.PredictLabel(xTest)
	if err != nil {
		return nil, r.fail(seed, StateScoring, fmt.Errorf("predict label: %w", err)), nil
	}
	scores, err := scoring.Evaluate(yTest, probs, decisions, cfg.CostRatio)
	if err != nil {
		return nil, r.fail(seed, StateScoring, err), nil
	}

	for metric, reason := range scores.Unscored {
		log.Debug().
			Str("stage", r.result.Stage).
			Str("model", r.result.Model).
			Int64("seed", seed).
			Str("metric", metric).
			Str("reason", reason).
			Msg("Metric unscored")
	}

	return &IterationResult{
		Seed:      seed,
		TrainSize: len(part.Train),
		TestSize:  len(part.Test),
		Metrics:   scores.Values,
		Unscored:  scores.Unscored,
		Duration:  time.Since(start),
	}, nil, nil
}

func (r *run) fail(seed int64, state State, err error) *IterationFailure {
	log.Warn().
		Err(err).
		Str("stage", r.result.Stage).
		Str("model", r.result.Model).
		Int64("seed", seed).
		Str("state", state.String()).
		Msg("Iteration failed")

	return &IterationFailure{Seed: seed, State: state, Error: err.Error()}
}

func (r *run) abort(seed int64, err error) *ConfigurationResult {
	r.result.Status = StateAborted
	r.result.Err = err
	r.result.Error = err.Error()
	r.result.FinishedAt = time.Now()
	r.emit(Event{Seed: seed, State: StateAborted, Err: err})

	log.Error().
		Err(err).
		Str("stage", r.result.Stage).
		Str("model", r.result.Model).
		Int64("seed", seed).
		Int("succeeded", len(r.result.Iterations)).
		Int("failed", len(r.result.Failures)).
		Msg("Configuration aborted")

	r.engine.observer.OnComplete(r.result)
	return r.result
}

func (r *run) emit(ev Event) {
	ev.Stage = r.result.Stage
	ev.Model = r.result.Model
	ev.Time = time.Now()
	r.engine.observer.OnEvent(ev)
}
