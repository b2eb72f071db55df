// Package report writes evaluation results to disk as CSV, JSON and a plain
// text summary, and prints the console summary table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"holdoutbench/internal/common"
	"holdoutbench/internal/dataset"
	"holdoutbench/internal/harness"
)

// Reporter generates the output files for one run.
type Reporter struct {
	results      []*harness.ConfigurationResult
	config       harness.Config
	descriptions []dataset.Description
	outputPath   string
}

// NewReporter creates a reporter writing under outputPath.
func NewReporter(config harness.Config, results []*harness.ConfigurationResult, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		config:     config,
		outputPath: outputPath,
	}
}

// WithDescriptions adds dataset descriptions, written to
// descriptive_statistics.csv and results.json.
func (r *Reporter) WithDescriptions(descriptions []dataset.Description) *Reporter {
	r.descriptions = descriptions
	return r
}

// GenerateReport writes every report file.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummaryText(); err != nil {
		return err
	}
	if err := r.generateSummaryCSV(); err != nil {
		return err
	}
	if err := r.generateIterationLogs(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	if len(r.descriptions) > 0 {
		if err := r.generateDescriptiveStats(); err != nil {
			return err
		}
	}
	return nil
}

// generateSummaryText writes the human-readable summary.
func (r *Reporter) generateSummaryText() error {
	summaryPath := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "REPEATED HOLDOUT EVALUATION\n")
	fmt.Fprintf(file, "===========================\n\n")
	fmt.Fprintf(file, "Iterations: %d (seeds %d..%d)\n", r.config.Iterations,
		r.config.SeedStart, r.config.SeedStart+int64(r.config.Iterations)-1)
	fmt.Fprintf(file, "Holdout Fraction: %.2f\n", r.config.HoldoutFraction)
	fmt.Fprintf(file, "Confidence Level: %.0f%%\n", r.config.ConfidenceLevel*100)
	fmt.Fprintf(file, "H-Measure Cost Ratio: %.2f\n\n", r.config.CostRatio)

	if len(r.descriptions) > 0 {
		fmt.Fprintf(file, "DATASETS\n")
		fmt.Fprintf(file, "--------\n")
		for _, d := range r.descriptions {
			fmt.Fprintf(file, "%s: %d rows, %d features, %d positives (%.2f%%)\n",
				d.Name, d.Rows, len(d.Features), d.Positives, d.PositiveRate*100)
		}
		fmt.Fprintln(file)
	}

	r.WriteSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generateSummaryCSV writes one row per configuration with every metric's
// mean, interval bounds and range.
func (r *Reporter) generateSummaryCSV() error {
	csvPath := filepath.Join(r.outputPath, "summary.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create summary CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"stage", "model", "status", "succeeded", "failed", "error"}
	for _, metric := range common.MetricNames {
		header = append(header,
			metric+"_mean", metric+"_ci_lower", metric+"_ci_upper", metric+"_min", metric+"_max")
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, res := range r.results {
		record := []string{
			res.Stage,
			res.Model,
			res.Status.String(),
			strconv.Itoa(len(res.Iterations)),
			strconv.Itoa(len(res.Failures)),
			res.Error,
		}
		for _, metric := range common.MetricNames {
			s, ok := res.Summary(metric)
			if !ok {
				record = append(record, "", "", "", "", "")
				continue
			}
			record = append(record,
				formatFloat(s.Mean), formatFloat(s.Lower), formatFloat(s.Upper),
				formatFloat(s.Min), formatFloat(s.Max))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write summary CSV: %w", err)
	}
	log.Info().Str("file", csvPath).Msg("Summary CSV generated")
	return nil
}

// generateIterationLogs writes the raw per-seed metrics of every
// configuration, failed seeds included.
// Configurations whose sanitized names collide get a numeric suffix.
func (r *Reporter) generateIterationLogs() error {
	used := make(map[string]bool)
	for _, res := range r.results {
		if len(res.Iterations) == 0 && len(res.Failures) == 0 {
			continue
		}
		if err := r.generateIterationLog(res, uniqueFileName(used, res.Stage, res.Model)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) generateIterationLog(res *harness.ConfigurationResult, name string) error {
	csvPath := filepath.Join(r.outputPath, name)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create iteration log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"seed", "train_size", "test_size"}
	header = append(header, common.MetricNames...)
	header = append(header, "status", "error")
	if err := writer.Write(header); err != nil {
		return err
	}

	type row struct {
		seed   int64
		fields []string
	}
	rows := make([]row, 0, len(res.Iterations)+len(res.Failures))
	for _, it := range res.Iterations {
		fields := []string{
			strconv.FormatInt(it.Seed, 10),
			strconv.Itoa(it.TrainSize),
			strconv.Itoa(it.TestSize),
		}
		for _, metric := range common.MetricNames {
			if v, ok := it.Metrics[metric]; ok {
				fields = append(fields, formatFloat(v))
			} else {
				fields = append(fields, "")
			}
		}
		fields = append(fields, harness.StateRecorded.String(), "")
		rows = append(rows, row{it.Seed, fields})
	}
	for _, f := range res.Failures {
		fields := []string{strconv.FormatInt(f.Seed, 10), "", ""}
		for range common.MetricNames {
			fields = append(fields, "")
		}
		fields = append(fields, "failed_"+f.State.String(), f.Error)
		rows = append(rows, row{f.Seed, fields})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seed < rows[j].seed })

	for _, rw := range rows {
		if err := writer.Write(rw.fields); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Str("stage", res.Stage).Str("model", res.Model).Msg("Iteration log generated")
	return nil
}

// generateJSONReport writes the complete results document.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "results.json")

	report := map[string]interface{}{
		"config":         r.config,
		"configurations": r.results,
		"generated_at":   time.Now(),
	}
	if len(r.descriptions) > 0 {
		report["datasets"] = r.descriptions
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// generateDescriptiveStats writes one row per stage and feature.
func (r *Reporter) generateDescriptiveStats() error {
	csvPath := filepath.Join(r.outputPath, "descriptive_statistics.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create descriptive statistics: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"stage", "feature", "count", "mean", "std_dev", "median", "q1", "q3", "min", "max"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, d := range r.descriptions {
		for _, f := range d.Features {
			record := []string{
				d.Name,
				f.Name,
				strconv.Itoa(f.Count),
				formatFloat(f.Mean),
				formatFloat(f.StdDev),
				formatFloat(f.Median),
				formatFloat(f.Q1),
				formatFloat(f.Q3),
				formatFloat(f.Min),
				formatFloat(f.Max),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	log.Info().Str("file", csvPath).Msg("Descriptive statistics generated")
	return nil
}

// PrintSummary prints the summary table to stdout.
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.WriteSummary(os.Stdout)
}

// WriteSummary writes one block per configuration with every metric as
// "mean (lower, upper)".
func (r *Reporter) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "=== RESULTS (%.0f%% CI, %d iterations) ===\n", r.config.ConfidenceLevel*100, r.config.Iterations)
	for _, res := range r.results {
		fmt.Fprintf(w, "%s / %s [%s]", res.Stage, res.Model, res.Status)
		if res.Status == harness.StateAborted {
			fmt.Fprintf(w, ": %s\n", res.Error)
			continue
		}
		fmt.Fprintf(w, " %d succeeded, %d failed\n", len(res.Iterations), len(res.Failures))
		for _, metric := range common.MetricNames {
			s, ok := res.Summary(metric)
			if !ok {
				if reason, skipped := res.Unsummarized[metric]; skipped {
					fmt.Fprintf(w, "  %-10s n/a (%s)\n", common.MetricLabels[metric], reason)
				}
				continue
			}
			fmt.Fprintf(w, "  %-10s %s\n", common.MetricLabels[metric], FormatInterval(s.Mean, s.Lower, s.Upper))
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 30))
}

// FormatInterval renders a mean and its bounds as "0.7123 (0.7011, 0.7235)".
func FormatInterval(mean, lower, upper float64) string {
	return fmt.Sprintf("%.4f (%.4f, %.4f)", mean, lower, upper)
}

// IterationFileName returns the per-configuration CSV name with unsafe
// characters replaced.
func IterationFileName(stage, model string) string {
	return sanitize(stage) + "_" + sanitize(model) + "_iterations.csv"
}

// uniqueFileName returns IterationFileName(stage, model), or the same name
// with a _2, _3, ... suffix when it is already in used, and marks it used.
func uniqueFileName(used map[string]bool, stage, model string) string {
	name := IterationFileName(stage, model)
	base := strings.TrimSuffix(name, "_iterations.csv")
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s_%d_iterations.csv", base, i)
	}
	used[name] = true
	return name
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
