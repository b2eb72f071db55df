// Package storage persists evaluation runs in BoltDB so results can be
// audited after the process exits.
//
// Every run is stored as a metadata record plus one summary record per
// configuration and one record per seed, all keyed by the run identifier.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFile = "holdoutbench.db"

	runsBucket       = "runs"       // Run metadata keyed by run ID
	summariesBucket  = "summaries"  // Metric summaries keyed by run/stage/model
	iterationsBucket = "iterations" // Per-seed records keyed by run/stage/model/seed
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store provides persistent storage for evaluation runs using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures every
// bucket exists.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, summariesBucket, iterationsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func configurationKey(runID, stage, model string) string {
	return fmt.Sprintf("%s/%s/%s", runID, stage, model)
}

func iterationKey(runID, stage, model string, seed int64) []byte {
	return []byte(fmt.Sprintf("%s/%d", configurationKey(runID, stage, model), seed))
}

// scanPrefix calls fn for every key in bucket starting with prefix.
func scanPrefix(tx *bbolt.Tx, bucket string, prefix []byte, fn func(k, v []byte) error) error {
	c := tx.Bucket([]byte(bucket)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
