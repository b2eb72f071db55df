package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdoutbench/internal/common"
	"holdoutbench/internal/dataset"
	"holdoutbench/internal/harness"
	"holdoutbench/internal/summary"
)

func sampleResults() []*harness.ConfigurationResult {
	summaries := make([]summary.MetricSummary, 0, len(common.MetricNames))
	for _, metric := range common.MetricNames {
		summaries = append(summaries, summary.MetricSummary{
			Metric: metric, N: 2, Mean: 0.7, Lower: 0.65, Upper: 0.75, Min: 0.68, Max: 0.72, Confidence: 0.95,
		})
	}
	done := &harness.ConfigurationResult{
		Stage:     "Stage 3: MiniLM",
		Model:     common.ModelLogisticRegression,
		Status:    harness.StateDone,
		Summaries: summaries,
		Iterations: []harness.IterationResult{
			{Seed: 3, TrainSize: 80, TestSize: 20, Metrics: map[string]float64{common.MetricROCAUC: 0.72, common.MetricF1: 0.5}},
			{Seed: 1, TrainSize: 80, TestSize: 20, Metrics: map[string]float64{common.MetricROCAUC: 0.68, common.MetricF1: 0.4}},
		},
		Failures: []harness.IterationFailure{
			{Seed: 2, State: harness.StateTraining, Error: "singular design matrix"},
		},
	}
	aborted := harness.NewAbortedResult("kosimcse", common.ModelLogisticRegression, errors.New("dataset not found"))
	return []*harness.ConfigurationResult{done, aborted}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestGenerateReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	config := harness.DefaultConfig()
	config.Iterations = 3

	descriptions := []dataset.Description{{
		Name: "Stage 3: MiniLM", Rows: 100, Positives: 40, Negatives: 60, PositiveRate: 0.4,
		Features: []dataset.FeatureDescription{{Name: "f0", Descriptive: summary.Descriptive{Count: 100, Mean: 1.5}}},
	}}

	reporter := NewReporter(config, sampleResults(), dir).WithDescriptions(descriptions)
	require.NoError(t, reporter.GenerateReport())

	for _, name := range []string{
		"summary.txt", "summary.csv", "results.json", "descriptive_statistics.csv",
		"Stage_3__MiniLM_logistic_regression_iterations.csv",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	// aborted configurations without iterations get no log
	assert.NoFileExists(t, filepath.Join(dir, "kosimcse_logistic_regression_iterations.csv"))

	t.Run("summary csv", func(t *testing.T) {
		rows := readCSV(t, filepath.Join(dir, "summary.csv"))
		require.Len(t, rows, 3)
		assert.Equal(t, 6+5*len(common.MetricNames), len(rows[0]))
		assert.Equal(t, "roc_auc_mean", rows[0][6])
		assert.Equal(t, "roc_auc_ci_lower", rows[0][7])

		assert.Equal(t, []string{"Stage 3: MiniLM", "logistic_regression", "done", "2", "1", ""}, rows[1][:6])
		assert.Equal(t, "0.700000", rows[1][6])
		assert.Equal(t, "0.650000", rows[1][7])
		assert.Equal(t, "0.750000", rows[1][8])

		assert.Equal(t, "aborted", rows[2][2])
		assert.Equal(t, "dataset not found", rows[2][5])
		assert.Equal(t, "", rows[2][6])
	})

	t.Run("iteration log", func(t *testing.T) {
		rows := readCSV(t, filepath.Join(dir, "Stage_3__MiniLM_logistic_regression_iterations.csv"))
		require.Len(t, rows, 4)
		assert.Equal(t, "seed", rows[0][0])

		var seeds []string
		for _, row := range rows[1:] {
			seeds = append(seeds, row[0])
		}
		assert.Equal(t, []string{"1", "2", "3"}, seeds)

		status := len(rows[0]) - 2
		assert.Equal(t, "recorded", rows[1][status])
		assert.Equal(t, "failed_training", rows[2][status])
		assert.Equal(t, "singular design matrix", rows[2][status+1])
		assert.Equal(t, "0.680000", rows[1][3])
		// unscored metrics are left blank
		assert.Equal(t, "", rows[1][4])
	})

	t.Run("json", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "results.json"))
		require.NoError(t, err)

		var doc struct {
			Configurations []struct {
				Stage     string                  `json:"stage"`
				Status    string                  `json:"status"`
				Error     string                  `json:"error"`
				Summaries []summary.MetricSummary `json:"summaries"`
			} `json:"configurations"`
			Datasets []dataset.Description `json:"datasets"`
		}
		require.NoError(t, json.Unmarshal(data, &doc))
		require.Len(t, doc.Configurations, 2)
		assert.Equal(t, "done", doc.Configurations[0].Status)
		assert.Len(t, doc.Configurations[0].Summaries, len(common.MetricNames))
		assert.Equal(t, "aborted", doc.Configurations[1].Status)
		assert.Equal(t, "dataset not found", doc.Configurations[1].Error)
		require.Len(t, doc.Datasets, 1)
		assert.Equal(t, 1.5, doc.Datasets[0].Features[0].Mean)
	})

	t.Run("descriptive statistics", func(t *testing.T) {
		rows := readCSV(t, filepath.Join(dir, "descriptive_statistics.csv"))
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"Stage 3: MiniLM", "f0", "100", "1.500000"}, rows[1][:4])
	})
}

func TestGenerateReport_WithoutDescriptions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewReporter(harness.DefaultConfig(), sampleResults(), dir).GenerateReport())
	assert.NoFileExists(t, filepath.Join(dir, "descriptive_statistics.csv"))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(harness.DefaultConfig(), sampleResults(), "").WriteSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "95% CI, 50 iterations")
	assert.Contains(t, out, "Stage 3: MiniLM / logistic_regression [done] 2 succeeded, 1 failed")
	assert.Contains(t, out, "ROC-AUC    0.7000 (0.6500, 0.7500)")
	assert.Contains(t, out, "kosimcse / logistic_regression [aborted]: dataset not found")
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "0.7123 (0.7011, 0.7235)", FormatInterval(0.71234, 0.70111, 0.72349))
}

func TestIterationFileName(t *testing.T) {
	assert.Equal(t, "tfidf_naive_bayes_iterations.csv", IterationFileName("tfidf", "naive_bayes"))
	assert.Equal(t, "a_b_c_d_iterations.csv", IterationFileName("a/b", "c d"))
}

func TestUniqueFileName(t *testing.T) {
	used := make(map[string]bool)
	assert.Equal(t, "a_b_lr_iterations.csv", uniqueFileName(used, "a.b", "lr"))
	assert.Equal(t, "a_b_lr_2_iterations.csv", uniqueFileName(used, "a_b", "lr"))
	assert.Equal(t, "a_b_lr_3_iterations.csv", uniqueFileName(used, "a b", "lr"))
	assert.Equal(t, "c_lr_iterations.csv", uniqueFileName(used, "c", "lr"))
}

func TestGenerateReport_CollidingNames(t *testing.T) {
	dir := t.TempDir()
	makeResult := func(stage string, seed int64) *harness.ConfigurationResult {
		return &harness.ConfigurationResult{
			Stage:  stage,
			Model:  common.ModelPrior,
			Status: harness.StateDone,
			Iterations: []harness.IterationResult{
				{Seed: seed, TrainSize: 8, TestSize: 2, Metrics: map[string]float64{common.MetricRecall: 1}},
			},
		}
	}
	results := []*harness.ConfigurationResult{makeResult("a.b", 11), makeResult("a_b", 22)}

	require.NoError(t, NewReporter(harness.DefaultConfig(), results, dir).GenerateReport())

	first := readCSV(t, filepath.Join(dir, "a_b_prior_iterations.csv"))
	second := readCSV(t, filepath.Join(dir, "a_b_prior_2_iterations.csv"))
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, "11", first[1][0])
	assert.Equal(t, "22", second[1][0])
}

func TestWriteSummary_Unsummarized(t *testing.T) {
	res := &harness.ConfigurationResult{
		Stage:  "tfidf",
		Model:  common.ModelLogisticRegression,
		Status: harness.StateDone,
		Summaries: []summary.MetricSummary{
			{Metric: common.MetricRecall, N: 3, Mean: 0.6, Lower: 0.5, Upper: 0.7},
		},
		Unsummarized: map[string]string{
			common.MetricROCAUC: "insufficient samples for roc_auc: need at least 2, got 1",
		},
	}

	var buf bytes.Buffer
	NewReporter(harness.DefaultConfig(), []*harness.ConfigurationResult{res}, "").WriteSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "ROC-AUC    n/a (insufficient samples for roc_auc: need at least 2, got 1)")
	assert.Contains(t, out, "Recall     0.6000 (0.5000, 0.7000)")
	assert.NotContains(t, out, "PR-AUC")
}
