package common

// Metric names, in report order
const (
	MetricROCAUC   = "roc_auc"
	MetricPRAUC    = "pr_auc"
	MetricHMeasure = "h_measure"
	MetricRecall   = "recall"
	MetricF1       = "f1_score"
)

// MetricNames lists every tracked metric in canonical order.
var MetricNames = []string{MetricROCAUC, MetricPRAUC, MetricHMeasure, MetricRecall, MetricF1}

// MetricLabels maps metric names to their display labels.
var MetricLabels = map[string]string{
	MetricROCAUC:   "ROC-AUC",
	MetricPRAUC:    "PR-AUC",
	MetricHMeasure: "H-Measure",
	MetricRecall:   "Recall",
	MetricF1:       "F1-Score",
}

// Model kinds
const (
	ModelLogisticRegression = "logistic_regression"
	ModelNaiveBayes         = "naive_bayes"
	ModelPrior              = "prior"
)

// Dataset formats
const (
	FormatAuto = "auto"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
	FormatHTTP = "http"
)

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvIterations        = "ITERATIONS"
	EnvSeedStart         = "SEED_START"
	EnvHoldoutFraction   = "HOLDOUT_FRACTION"
	EnvConfidenceLevel   = "CONFIDENCE_LEVEL"
	EnvCostRatio         = "COST_RATIO"
	EnvDecisionThreshold = "DECISION_THRESHOLD"
	EnvParallelism       = "PARALLELISM"
	EnvStages            = "STAGES"
	EnvModels            = "MODELS"
	EnvLabelColumn       = "LABEL_COLUMN"
	EnvOutputPath        = "OUTPUT_PATH"
	EnvDataPath          = "DATA_PATH"
	EnvDashboardPort     = "DASHBOARD_PORT"
	EnvLogLevel          = "LOG_LEVEL"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultIterations        = 50
	DefaultSeedStart         = 1
	DefaultHoldoutFraction   = 0.2
	DefaultConfidenceLevel   = 0.95
	DefaultCostRatio         = 0.5
	DefaultDecisionThreshold = 0.5
	DefaultParallelism       = 1
	DefaultLabelColumn       = "label"
	DefaultOutputPath        = "results"
	DefaultLogLevel          = "info"
	DefaultInverseRegularize = 1.0
	DefaultMaxIterations     = 100
	DefaultClassWeight       = "balanced"
)

// Validation constants
const (
	MaxIterations     = 10000
	MaxParallelism    = 64
	MinDashboardPort  = 1024
	MaxDashboardPort  = 65535
	MinRequestTimeout = 1   // seconds
	MaxRequestTimeout = 300 // seconds
)
