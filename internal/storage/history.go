// Package storage keeps a local history of genload runs in a bbolt database.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/genload/internal/engine"
)

const (
	bucketRuns  = "runs"
	bucketIndex = "runs_by_id"
)

// ErrNotFound is returned by Get and Delete for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// RunRecord is the stored summary of one run.
type RunRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Target    string        `json:"target"`
	Executor  string        `json:"executor"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Requests  int64         `json:"requests"`
	Failures  int64         `json:"failures"`
	RPS       float64       `json:"rps"`
	P95       time.Duration `json:"p95"`
	CheckRate float64       `json:"checkRate"`
	Passed    bool          `json:"passed"`
	Error     string        `json:"error,omitempty"`
}

// RecordFromResult summarizes a run result.
func RecordFromResult(r *engine.Result) RunRecord {
	rec := RunRecord{
		ID:        r.RunID,
		Name:      r.Name,
		Target:    r.Target,
		Executor:  string(r.Executor),
		StartedAt: r.StartTime,
		Duration:  r.Duration,
		Passed:    r.Passed,
		Error:     r.Error,
	}
	if m := r.Metrics; m != nil {
		rec.Requests = m.TotalRequests
		rec.Failures = m.FailedRequests
		rec.RPS = m.RPS
		rec.P95 = m.Latency.P95
		rec.CheckRate = m.CheckRate
	}
	return rec
}

// Store is a bbolt-backed run history.
type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath is $HOME/.genload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".genload", "history.db"), nil
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rec, replacing any record with the same ID.
func (s *Store) Save(rec RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no ID")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		if old := index.Get([]byte(rec.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}

		key := runKey(rec.StartedAt, rec.ID)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(rec.ID), key)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]RunRecord, error) {
	var out []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %x: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Get returns the record with id.
func (s *Store) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(bucketIndex)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(bucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record with id.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(bucketIndex))
		key := index.Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		if err := tx.Bucket([]byte(bucketRuns)).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

// runKey orders records by start time, then ID.
func runKey(t time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return append(key, id...)
}
