// Package state persists per-issue processing status as a single JSON
// document, surviving process restarts and tolerating corruption.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jywlabs/sitetriage/internal/retry"
)

// Status is the lifecycle state of one issue's processing.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusPreview            Status = "preview"
	StatusNeedsClarification Status = "needs_clarification"
	StatusCompleted          Status = "completed"
	StatusError              Status = "error"
	StatusPaused             Status = "paused"
)

// Valid reports whether s is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPreview, StatusNeedsClarification,
		StatusCompleted, StatusError, StatusPaused:
		return true
	}
	return false
}

// Record is the persisted state for one issue number.
type Record struct {
	Status        Status     `json:"status"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	WorkflowName  string     `json:"workflow_name,omitempty"`
	CreatedFiles  []string   `json:"created_files,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Clarification string     `json:"clarification,omitempty"`
	ExecutionMode string     `json:"execution_mode,omitempty"`
}

const (
	lockTimeout      = 30 * time.Second
	lockPollInterval = 50 * time.Millisecond
	saveMaxRetries   = 3
	saveRetryDelay   = 100 * time.Millisecond
)

// Store is a durable key-value store of issue state, keyed by issue number.
// Every load-modify-write holds an exclusive file lock, so concurrent
// processes updating the same store cannot interleave and lose writes.
type Store struct {
	path   string
	lock   *flock.Flock
	logger io.Writer
}

// NewStore creates a store over the given JSON file path. The file does
// not need to exist yet.
func NewStore(path string, logger io.Writer) *Store {
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns the record for an issue number, or nil if none exists.
func (s *Store) Get(number int) (*Record, error) {
	unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	all, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	rec, ok := all[key(number)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// All returns every record keyed by issue-number string.
func (s *Store) All() (map[string]Record, error) {
	unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadLocked()
}

// UpdateStatus transitions an issue to a new status, applies the optional
// merge function to the record, stamps updated_at, and persists
// atomically. The record is created implicitly on first update.
func (s *Store) UpdateStatus(number int, status Status, merge func(*Record)) error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	all, err := s.loadLocked()
	if err != nil {
		return err
	}

	rec := all[key(number)]
	rec.Status = status
	if merge != nil {
		merge(&rec)
	}
	rec.UpdatedAt = time.Now().UTC()
	all[key(number)] = rec

	return s.saveLocked(all)
}

// ClearIssue removes the record for one issue number. Clearing an unknown
// issue is not an error.
func (s *Store) ClearIssue(number int) error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := all[key(number)]; !ok {
		return nil
	}
	delete(all, key(number))
	return s.saveLocked(all)
}

// ResetAll discards every record.
func (s *Store) ResetAll() error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	return s.saveLocked(map[string]Record{})
}

func (s *Store) acquire() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return nil, fmt.Errorf("state store lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("state store lock: timed out after %s", lockTimeout)
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logf("state store unlock failed: %v", err)
		}
	}, nil
}

// loadLocked reads the whole document. A missing file is an empty store.
// A corrupt file is backed up (best-effort) and replaced with an empty
// store rather than surfaced as an error. Records with an unrecognized
// status are reset to pending, keeping their other fields.
func (s *Store) loadLocked() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state store: %w", err)
	}

	var all map[string]Record
	if err := json.Unmarshal(data, &all); err != nil {
		s.backupCorrupt(data)
		return map[string]Record{}, nil
	}
	if all == nil {
		all = map[string]Record{}
	}

	for k, rec := range all {
		if !rec.Status.Valid() {
			s.logf("state store: issue %s has unknown status %q, resetting to pending", k, rec.Status)
			rec.Status = StatusPending
			all[k] = rec
		}
	}
	return all, nil
}

func (s *Store) backupCorrupt(data []byte) {
	backup := fmt.Sprintf("%s.corrupt.%s", s.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, 0644); err != nil {
		s.logf("state store: failed to back up corrupt file: %v", err)
		return
	}
	s.logf("state store: corrupt file backed up to %s, starting empty", backup)
}

// saveLocked writes the document via temp file + atomic rename, retrying
// transient OS errors a bounded number of times.
func (s *Store) saveLocked(all map[string]Record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	return retry.Do(context.Background(), retry.Config{
		MaxRetries: saveMaxRetries,
		BaseDelay:  saveRetryDelay,
		FixedDelay: true,
		RetryAll:   true,
	}, func() error {
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("write temp state file: %w", err)
		}
		return os.Rename(tmp, s.path)
	})
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		fmt.Fprintf(s.logger, format+"\n", args...)
	}
}

func key(number int) string {
	return fmt.Sprintf("%d", number)
}
