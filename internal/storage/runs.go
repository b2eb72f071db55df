package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"holdoutbench/internal/harness"
	"holdoutbench/internal/summary"
)

// ConfigurationStatus is the terminal state of one configuration within a run.
type ConfigurationStatus struct {
	Stage     string        `json:"stage"`
	Model     string        `json:"model"`
	Status    harness.State `json:"status"`
	Error     string        `json:"error,omitempty"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// Run is the metadata of one evaluation batch.
type Run struct {
	ID             string                `json:"id"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	Config         harness.Config        `json:"config"`
	Configurations []ConfigurationStatus `json:"configurations"`
}

// IterationRecord is one seed of one configuration: either its metric values
// or the failure that excluded it.
type IterationRecord struct {
	Seed      int64              `json:"seed"`
	TrainSize int                `json:"train_size,omitempty"`
	TestSize  int                `json:"test_size,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Unscored  map[string]string  `json:"unscored,omitempty"`
	Failure   string             `json:"failure,omitempty"`
	State     harness.State      `json:"state"`
}

// NewRun builds run metadata for results with a fresh identifier.
func NewRun(config harness.Config, started time.Time, results []*harness.ConfigurationResult) *Run {
	run := &Run{
		ID:             uuid.New().String(),
		StartedAt:      started,
		FinishedAt:     time.Now(),
		Config:         config,
		Configurations: make([]ConfigurationStatus, 0, len(results)),
	}
	for _, res := range results {
		run.Configurations = append(run.Configurations, ConfigurationStatus{
			Stage:     res.Stage,
			Model:     res.Model,
			Status:    res.Status,
			Error:     res.Error,
			Succeeded: len(res.Iterations),
			Failed:    len(res.Failures),
		})
	}
	return run
}

// SaveRun stores run metadata together with every configuration's summaries
// and per-seed records in a single transaction.
func (s *Store) SaveRun(run *Run, results []*harness.ConfigurationResult) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := tx.Bucket([]byte(runsBucket)).Put([]byte(run.ID), data); err != nil {
			return fmt.Errorf("put run: %w", err)
		}

		summaries := tx.Bucket([]byte(summariesBucket))
		iterations := tx.Bucket([]byte(iterationsBucket))
		for _, res := range results {
			if len(res.Summaries) > 0 {
				data, err := json.Marshal(res.Summaries)
				if err != nil {
					return fmt.Errorf("marshal summaries for %s: %w", res.Key(), err)
				}
				key := configurationKey(run.ID, res.Stage, res.Model)
				if err := summaries.Put([]byte(key), data); err != nil {
					return fmt.Errorf("put summaries for %s: %w", res.Key(), err)
				}
			}

			for _, rec := range iterationRecords(res) {
				data, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("marshal iteration %d of %s: %w", rec.Seed, res.Key(), err)
				}
				if err := iterations.Put(iterationKey(run.ID, res.Stage, res.Model, rec.Seed), data); err != nil {
					return fmt.Errorf("put iteration %d of %s: %w", rec.Seed, res.Key(), err)
				}
			}
		}
		return nil
	})
}

func iterationRecords(res *harness.ConfigurationResult) []IterationRecord {
	records := make([]IterationRecord, 0, len(res.Iterations)+len(res.Failures))
	for _, it := range res.Iterations {
		records = append(records, IterationRecord{
			Seed:      it.Seed,
			TrainSize: it.TrainSize,
			TestSize:  it.TestSize,
			Metrics:   it.Metrics,
			Unscored:  it.Unscored,
			State:     harness.StateRecorded,
		})
	}
	for _, f := range res.Failures {
		records = append(records, IterationRecord{
			Seed:    f.Seed,
			Failure: f.Error,
			State:   f.State,
		})
	}
	return records
}

// GetRun returns the run with the given identifier.
func (s *Store) GetRun(id string) (*Run, error) {
	var run *Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		run = &Run{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns every stored run, oldest first.
func (s *Store) ListRuns() ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			run := &Run{}
			if err := json.Unmarshal(v, run); err != nil {
				return fmt.Errorf("unmarshal run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

// GetSummaries returns the metric summaries of one configuration. Aborted
// configurations have none.
func (s *Store) GetSummaries(runID, stage, model string) ([]summary.MetricSummary, error) {
	var out []summary.MetricSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(summariesBucket)).Get([]byte(configurationKey(runID, stage, model)))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	return out, err
}

// GetIterations returns the per-seed records of one configuration ordered
// by seed.
func (s *Store) GetIterations(runID, stage, model string) ([]IterationRecord, error) {
	var records []IterationRecord
	prefix := []byte(configurationKey(runID, stage, model) + "/")

	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanPrefix(tx, iterationsBucket, prefix, func(_, v []byte) error {
			var rec IterationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal iteration: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seed < records[j].Seed
	})
	return records, nil
}
