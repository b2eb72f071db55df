// Package cfg loads harness settings from a YAML file or environment
// variables. Environment variables override values from the file.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"holdoutbench/internal/common"
	"holdoutbench/internal/dataset"
	"holdoutbench/internal/harness"
	"holdoutbench/internal/ml"
)

type Settings struct {
	Iterations        int
	SeedStart         int64
	HoldoutFraction   float64
	ConfidenceLevel   float64
	CostRatio         float64
	DecisionThreshold float64
	Parallelism       int
	Stages            []dataset.Source
	Models            []ml.Spec
	LabelColumn       string
	OutputPath        string
	DataPath          string
	DashboardPort     int
	LogLevel          string
	RequestTimeout    time.Duration
}

type ConfigFile struct {
	Evaluation struct {
		Iterations        int     `yaml:"iterations"`
		SeedStart         int64   `yaml:"seedStart"`
		HoldoutFraction   float64 `yaml:"holdoutFraction"`
		ConfidenceLevel   float64 `yaml:"confidenceLevel"`
		CostRatio         float64 `yaml:"costRatio"`
		DecisionThreshold float64 `yaml:"decisionThreshold"`
		Parallelism       int     `yaml:"parallelism"`
	} `yaml:"evaluation"`

	Data struct {
		LabelColumn string           `yaml:"labelColumn"`
		Stages      []dataset.Source `yaml:"stages"`
	} `yaml:"data"`

	Models []ml.Spec `yaml:"models"`

	Output struct {
		Path     string `yaml:"path"`
		DataPath string `yaml:"dataPath"`
	} `yaml:"output"`

	System struct {
		DashboardPort  int    `yaml:"dashboardPort"`
		LogLevel       string `yaml:"logLevel"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"system"`
}

// HarnessConfig returns the engine configuration.
func (s *Settings) HarnessConfig() harness.Config {
	return harness.Config{
		Iterations:      s.Iterations,
		SeedStart:       s.SeedStart,
		HoldoutFraction: s.HoldoutFraction,
		ConfidenceLevel: s.ConfidenceLevel,
		CostRatio:       s.CostRatio,
		Parallelism:     s.Parallelism,
	}
}

// Validate re-checks the settings, for example after command line overrides.
func (s *Settings) Validate() error {
	return validateSettings(s)
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.System.RequestTimeout)
	if err != nil {
		requestTimeout = 30 * time.Second
	}

	settings := Settings{
		Iterations:        getIntFromEnvOrConfig(common.EnvIterations, config.Evaluation.Iterations, common.DefaultIterations),
		SeedStart:         int64(getIntFromEnvOrConfig(common.EnvSeedStart, int(config.Evaluation.SeedStart), common.DefaultSeedStart)),
		HoldoutFraction:   getFloatFromEnvOrConfig(common.EnvHoldoutFraction, config.Evaluation.HoldoutFraction, common.DefaultHoldoutFraction),
		ConfidenceLevel:   getFloatFromEnvOrConfig(common.EnvConfidenceLevel, config.Evaluation.ConfidenceLevel, common.DefaultConfidenceLevel),
		CostRatio:         getFloatFromEnvOrConfig(common.EnvCostRatio, config.Evaluation.CostRatio, common.DefaultCostRatio),
		DecisionThreshold: getFloatFromEnvOrConfig(common.EnvDecisionThreshold, config.Evaluation.DecisionThreshold, common.DefaultDecisionThreshold),
		Parallelism:       getIntFromEnvOrConfig(common.EnvParallelism, config.Evaluation.Parallelism, common.DefaultParallelism),
		Stages:            config.Data.Stages,
		Models:            config.Models,
		LabelColumn:       getEnvOrDefault(common.EnvLabelColumn, orDefault(config.Data.LabelColumn, common.DefaultLabelColumn)),
		OutputPath:        getEnvOrDefault(common.EnvOutputPath, orDefault(config.Output.Path, common.DefaultOutputPath)),
		DataPath:          getEnvOrDefault(common.EnvDataPath, config.Output.DataPath),
		DashboardPort:     getIntFromEnvOrConfig(common.EnvDashboardPort, config.System.DashboardPort, 0),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
	}

	if env := os.Getenv(common.EnvStages); env != "" {
		stages, err := parseStages(env)
		if err != nil {
			return Settings{}, err
		}
		settings.Stages = stages
	}
	if env := os.Getenv(common.EnvModels); env != "" {
		settings.Models = parseModels(env)
	}

	applyDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	stagesEnv, err := getEnvRequired(common.EnvStages)
	if err != nil {
		return Settings{}, err
	}
	stages, err := parseStages(stagesEnv)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		Iterations:        getIntOrDefault(common.EnvIterations, common.DefaultIterations),
		SeedStart:         int64(getIntOrDefault(common.EnvSeedStart, common.DefaultSeedStart)),
		HoldoutFraction:   getFloatOrDefault(common.EnvHoldoutFraction, common.DefaultHoldoutFraction),
		ConfidenceLevel:   getFloatOrDefault(common.EnvConfidenceLevel, common.DefaultConfidenceLevel),
		CostRatio:         getFloatOrDefault(common.EnvCostRatio, common.DefaultCostRatio),
		DecisionThreshold: getFloatOrDefault(common.EnvDecisionThreshold, common.DefaultDecisionThreshold),
		Parallelism:       getIntOrDefault(common.EnvParallelism, common.DefaultParallelism),
		Stages:            stages,
		Models:            parseModels(getEnvOrDefault(common.EnvModels, common.ModelLogisticRegression)),
		LabelColumn:       getEnvOrDefault(common.EnvLabelColumn, common.DefaultLabelColumn),
		OutputPath:        getEnvOrDefault(common.EnvOutputPath, common.DefaultOutputPath),
		DataPath:          os.Getenv(common.EnvDataPath), // optional
		DashboardPort:     getIntOrDefault(common.EnvDashboardPort, 0),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, 30*time.Second),
	}

	applyDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyDefaults fills per-stage and per-model fields from the global settings.
func applyDefaults(s *Settings) {
	if len(s.Models) == 0 {
		s.Models = []ml.Spec{{Kind: common.ModelLogisticRegression}}
	}
	for i := range s.Stages {
		if s.Stages[i].LabelColumn == "" {
			s.Stages[i].LabelColumn = s.LabelColumn
		}
	}
	for i := range s.Models {
		if s.Models[i].Threshold == 0 {
			s.Models[i].Threshold = s.DecisionThreshold
		}
		s.Models[i] = s.Models[i].WithDefaults()
	}
}

// parseStages parses "name=location,..." where location is a file path or an
// http(s) URL.
func parseStages(v string) ([]dataset.Source, error) {
	var stages []dataset.Source
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, location, ok := strings.Cut(item, "=")
		if !ok || name == "" || location == "" {
			return nil, fmt.Errorf("invalid stage %q: expected name=path", item)
		}
		src := dataset.Source{Name: strings.TrimSpace(name), Format: common.FormatAuto}
		location = strings.TrimSpace(location)
		if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
			src.URL = location
		} else {
			src.Path = location
		}
		stages = append(stages, src)
	}
	return stages, nil
}

// parseModels parses a comma separated list of model kinds.
func parseModels(v string) []ml.Spec {
	var models []ml.Spec
	for _, kind := range strings.Split(v, ",") {
		if kind = strings.TrimSpace(kind); kind != "" {
			models = append(models, ml.Spec{Kind: kind})
		}
	}
	return models
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if err := settings.HarnessConfig().Validate(); err != nil {
		return err
	}
	if settings.DecisionThreshold <= 0 || settings.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold must be in (0, 1), got %f", settings.DecisionThreshold)
	}

	// Validate stages
	if len(settings.Stages) == 0 {
		return fmt.Errorf("at least one stage must be specified")
	}
	seen := make(map[string]bool)
	for _, stage := range settings.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage name cannot be empty")
		}
		if seen[stage.Name] {
			return fmt.Errorf("duplicate stage %s", stage.Name)
		}
		seen[stage.Name] = true
		if stage.Path == "" && stage.URL == "" {
			return fmt.Errorf("stage %s: a path or url is required", stage.Name)
		}
	}

	// Validate models
	if len(settings.Models) == 0 {
		return fmt.Errorf("at least one model must be specified")
	}
	seen = make(map[string]bool)
	for _, model := range settings.Models {
		if err := model.Validate(); err != nil {
			return err
		}
		if seen[model.Name] {
			return fmt.Errorf("duplicate model %s", model.Name)
		}
		seen[model.Name] = true
	}

	if settings.OutputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if settings.DashboardPort != 0 && (settings.DashboardPort < common.MinDashboardPort || settings.DashboardPort > common.MaxDashboardPort) {
		return fmt.Errorf("dashboard port must be 0 or between %d and %d, got %d",
			common.MinDashboardPort, common.MaxDashboardPort, settings.DashboardPort)
	}
	if settings.RequestTimeout < common.MinRequestTimeout*time.Second || settings.RequestTimeout > common.MaxRequestTimeout*time.Second {
		return fmt.Errorf("request timeout must be between %ds and %ds, got %v",
			common.MinRequestTimeout, common.MaxRequestTimeout, settings.RequestTimeout)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
