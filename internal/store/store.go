// Package store persists run reports and session state across invocations.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/report"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/session"
)

var (
	bucketReports  = []byte("reports")
	bucketSessions = []byte("sessions")
)

// Store is a bbolt-backed archive of run artifacts, keyed by run ID.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReports, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport persists a finished report under its run ID.
func (s *Store) SaveReport(r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Put([]byte(r.RunID), data)
	})
}

// LoadReport retrieves a report by run ID. Returns nil, nil when absent.
func (s *Store) LoadReport(runID string) (*report.Report, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketReports).Get([]byte(runID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &r, nil
}

// ListRuns returns all stored run IDs.
func (s *Store) ListRuns() ([]string, error) {
	var runs []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, _ []byte) error {
			runs = append(runs, string(k))
			return nil
		})
	})
	return runs, err
}

// SaveSession persists an exported session state under its run ID so a
// later run against the same target can resume authenticated.
func (s *Store) SaveSession(runID string, state session.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(runID), data)
	})
}

// LoadSession retrieves a stored session state. The boolean reports
// whether a state was present.
func (s *Store) LoadSession(runID string) (session.State, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSessions).Get([]byte(runID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return session.State{}, false, err
	}

	var state session.State
	if err := json.Unmarshal(data, &state); err != nil {
		return session.State{}, false, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return state, true, nil
}

// DeleteRun removes a run's report and session state.
func (s *Store) DeleteRun(runID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReports).Delete([]byte(runID)); err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Delete([]byte(runID))
	})
}
