package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"holdoutbench/internal/common"
)

// Source describes where a stage's dataset lives.
type Source struct {
	Name           string   `yaml:"name"`
	Path           string   `yaml:"path"`
	URL            string   `yaml:"url"`
	Format         string   `yaml:"format"`
	Sheet          string   `yaml:"sheet"`
	LabelColumn    string   `yaml:"labelColumn"`
	FeatureColumns []string `yaml:"featureColumns"`
}

// Loader reads datasets from local files or a remote server.
type Loader struct {
	client *Client
}

// NewLoader creates a loader whose remote requests use timeout.
func NewLoader(timeout time.Duration) *Loader {
	return &Loader{client: NewClient(timeout)}
}

// Load reads src with a default loader.
func Load(ctx context.Context, src Source) (*FeatureDataset, error) {
	return NewLoader(0).Load(ctx, src)
}

// Load reads and validates the dataset described by src.
func (l *Loader) Load(ctx context.Context, src Source) (*FeatureDataset, error) {
	format, err := resolveFormat(src)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var ds *FeatureDataset
	switch format {
	case common.FormatCSV:
		ds, err = l.loadCSV(src)
	case common.FormatXLSX:
		ds, err = l.loadXLSX(src)
	case common.FormatJSON:
		ds, err = l.loadJSON(src)
	case common.FormatHTTP:
		ds, err = l.loadHTTP(ctx, src)
	}
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", src.Name, err)
	}

	negatives, positives := ds.ClassCounts()
	log.Info().
		Str("stage", src.Name).
		Str("format", format).
		Int("rows", ds.Len()).
		Int("features", ds.Width()).
		Int("positives", positives).
		Int("negatives", negatives).
		Dur("elapsed", time.Since(start)).
		Msg("Dataset loaded")
	return ds, nil
}

// resolveFormat picks the loader from the explicit format, the URL or the
// file extension.
func resolveFormat(src Source) (string, error) {
	format := strings.ToLower(src.Format)
	if format != "" && format != common.FormatAuto {
		switch format {
		case common.FormatCSV, common.FormatXLSX, common.FormatJSON, common.FormatHTTP:
			return format, nil
		}
		return "", fmt.Errorf("stage %s: unsupported format %q", src.Name, src.Format)
	}

	if src.URL != "" {
		return common.FormatHTTP, nil
	}
	switch strings.ToLower(filepath.Ext(src.Path)) {
	case ".csv":
		return common.FormatCSV, nil
	case ".xlsx", ".xlsm":
		return common.FormatXLSX, nil
	case ".json":
		return common.FormatJSON, nil
	}
	return "", fmt.Errorf("stage %s: cannot infer format of %q", src.Name, src.Path)
}

func (l *Loader) loadCSV(src Source) (*FeatureDataset, error) {
	file, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return fromTable(src, rows)
}

func (l *Loader) loadXLSX(src Source) (*FeatureDataset, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := src.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", src.Path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return fromTable(src, rows)
}

func (l *Loader) loadJSON(src Source) (*FeatureDataset, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return New(src.Name, doc.FeatureNames, doc.Features, doc.Labels)
}

func (l *Loader) loadHTTP(ctx context.Context, src Source) (*FeatureDataset, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("http source has no url")
	}
	doc, err := l.client.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return New(src.Name, doc.FeatureNames, doc.Features, doc.Labels)
}

// fromTable converts a header row plus string cells into a dataset. Every
// column other than the label is a feature unless FeatureColumns is set.
func fromTable(src Source, rows [][]string) (*FeatureDataset, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("table must have a header row and at least one data row")
	}

	labelColumn := src.LabelColumn
	if labelColumn == "" {
		labelColumn = common.DefaultLabelColumn
	}

	indices := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		indices[strings.TrimSpace(col)] = i
	}
	labelIdx, ok := indices[labelColumn]
	if !ok {
		return nil, fmt.Errorf("label column %q not found", labelColumn)
	}

	var names []string
	var columns []int
	if len(src.FeatureColumns) > 0 {
		for _, name := range src.FeatureColumns {
			idx, ok := indices[name]
			if !ok {
				return nil, fmt.Errorf("feature column %q not found", name)
			}
			names = append(names, name)
			columns = append(columns, idx)
		}
	} else {
		for i, col := range rows[0] {
			if i == labelIdx {
				continue
			}
			names = append(names, strings.TrimSpace(col))
			columns = append(columns, i)
		}
	}

	x := make([][]float64, 0, len(rows)-1)
	y := make([]int, 0, len(rows)-1)
	for r, record := range rows[1:] {
		line := r + 2
		label, err := parseLabel(cell(record, labelIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		row := make([]float64, len(columns))
		for j, idx := range columns {
			v, err := strconv.ParseFloat(cell(record, idx), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", line, names[j], err)
			}
			row[j] = v
		}
		x = append(x, row)
		y = append(y, label)
	}
	return New(src.Name, names, x, y)
}

// cell returns the trimmed value at idx, or "" for short rows.
func cell(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseLabel(s string) (int, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q: %w", s, err)
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("label %v is not binary", v)
}
