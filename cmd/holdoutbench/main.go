package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"holdoutbench/internal/cfg"
	"holdoutbench/internal/common"
	"holdoutbench/internal/dashboard"
	"holdoutbench/internal/dataset"
	"holdoutbench/internal/harness"
	"holdoutbench/internal/metrics"
	"holdoutbench/internal/report"
	"holdoutbench/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		configPath = flag.String("config", "", "Path to YAML config file (sets CONFIG_FILE)")
		outputPath = flag.String("output", "", "Output directory for reports (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
		iterations = flag.Int("iterations", 0, "Number of seeds per configuration (overrides config)")
		parallel   = flag.Int("parallel", 0, "Configurations evaluated concurrently (overrides config)")
		describe   = flag.Bool("describe", false, "Write descriptive statistics for every stage")
	)
	flag.Parse()

	// Environment from .env is optional
	_ = godotenv.Load()

	if *configPath != "" {
		if err := os.Setenv(common.EnvConfigFile, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set %s: %v\n", common.EnvConfigFile, err)
			os.Exit(1)
		}
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *outputPath != "" {
		settings.OutputPath = *outputPath
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if *iterations > 0 {
		settings.Iterations = *iterations
	}
	if *parallel > 0 {
		settings.Parallelism = *parallel
	}
	if err := settings.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid command line overrides")
	}

	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Int("stages", len(settings.Stages)).
		Int("models", len(settings.Models)).
		Int("iterations", settings.Iterations).
		Int64("seedStart", settings.SeedStart).
		Float64("holdoutFraction", settings.HoldoutFraction).
		Float64("confidenceLevel", settings.ConfidenceLevel).
		Int("parallelism", settings.Parallelism).
		Str("output", settings.OutputPath).
		Msg("Starting holdout evaluation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	observers := []harness.Observer{metrics.NewRecorder(m)}

	if settings.DashboardPort > 0 {
		dash := dashboard.NewProgressDashboard(settings.Iterations, settings.DashboardPort, prometheus.DefaultGatherer)
		if err := dash.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start dashboard")
		}
		defer func() {
			if err := dash.Stop(); err != nil {
				log.Warn().Err(err).Msg("Failed to stop dashboard")
			}
		}()
		observers = append(observers, dash)
	}

	config := settings.HarnessConfig()
	engine, err := harness.NewEngine(config, observers...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	started := time.Now()
	results, descriptions := run(ctx, engine, settings, *describe)

	// Generate reports
	reporter := report.NewReporter(config, results, settings.OutputPath)
	if *describe {
		reporter = reporter.WithDescriptions(descriptions)
	}
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	// Print summary to console
	reporter.PrintSummary()

	if settings.DataPath != "" {
		if err := persist(settings.DataPath, config, started, results); err != nil {
			log.Error().Err(err).Msg("Failed to persist run")
		}
	}

	aborted := 0
	for _, res := range results {
		if res.Status == harness.StateAborted {
			aborted++
		}
	}
	log.Info().
		Int("configurations", len(results)).
		Int("aborted", aborted).
		Dur("elapsed", time.Since(started)).
		Str("output", settings.OutputPath).
		Msg("Evaluation completed")

	if ctx.Err() != nil {
		log.Warn().Msg("Evaluation interrupted, unfinished configurations were aborted")
	}
}

// run loads every stage and evaluates each stage × model configuration.
// Results are returned in stage-major, model-minor order. A stage that fails
// to load yields aborted results for all of its models.
func run(ctx context.Context, engine *harness.Engine, settings cfg.Settings, describe bool) ([]*harness.ConfigurationResult, []dataset.Description) {
	loader := dataset.NewLoader(settings.RequestTimeout)

	results := make([]*harness.ConfigurationResult, len(settings.Stages)*len(settings.Models))
	var (
		jobs         []harness.Job
		slots        []int
		descriptions []dataset.Description
	)

	for i, stage := range settings.Stages {
		ds, err := loader.Load(ctx, stage)
		if err != nil {
			log.Error().Err(err).Str("stage", stage.Name).Msg("Failed to load stage dataset")
			for j, model := range settings.Models {
				results[i*len(settings.Models)+j] = harness.NewAbortedResult(stage.Name, model.Name, err)
			}
			continue
		}

		if describe {
			desc, err := dataset.Describe(ds)
			if err != nil {
				log.Warn().Err(err).Str("stage", stage.Name).Msg("Failed to describe stage dataset")
			} else {
				descriptions = append(descriptions, desc)
			}
		}

		for j, model := range settings.Models {
			jobs = append(jobs, harness.Job{Stage: stage.Name, Dataset: ds, Model: model})
			slots = append(slots, i*len(settings.Models)+j)
		}
	}

	for k, res := range engine.RunAll(ctx, jobs) {
		results[slots[k]] = res
	}
	return results, descriptions
}

// persist stores the run so it can be listed and compared later.
func persist(dataPath string, config harness.Config, started time.Time, results []*harness.ConfigurationResult) error {
	store, err := storage.New(dataPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	run := storage.NewRun(config, started, results)
	if err := store.SaveRun(run, results); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	log.Info().Str("run", run.ID).Str("path", dataPath).Msg("Run persisted")
	return nil
}
