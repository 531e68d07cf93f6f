package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/vigil/internal/models"
)

// Store is the durable device-local ActivityRecord, persisted as a single
// JSON file. It is the only writer of the record; the periodic tick and
// event-driven activity stamps both go through it, and the monotonicity
// invariants are enforced here rather than at call sites.
type Store struct {
	path string

	mu     sync.Mutex
	record models.ActivityRecord
}

// OpenStore loads the record from disk, creating it with safe defaults on
// first access: lastActiveAt defaults to "now" (never unset, to avoid a
// false alarm right after install) and the device ID is generated once and
// is stable for the record's lifetime.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First access: lazy init
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.record); err != nil {
			return nil, fmt.Errorf("failed to parse state file: %w", err)
		}
	}

	now := time.Now()
	changed := false
	if s.record.DeviceID == "" {
		s.record.DeviceID = uuid.New().String()
		s.record.MonitoringEnabled = true
		changed = true
	}
	if s.record.LastActiveAt.IsZero() {
		s.record.LastActiveAt = now
		changed = true
	}
	// A tampered or corrupt file could claim a sync point ahead of the
	// activity point; clamp so lastSyncedAt <= lastActiveAt holds from load.
	if s.record.LastSyncedAt.After(s.record.LastActiveAt) {
		s.record.LastSyncedAt = s.record.LastActiveAt
		changed = true
	}

	if changed {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() models.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.DeviceID
}

// TouchActive moves lastActiveAt forward to t. Earlier timestamps are
// ignored, so racing stamps can only advance the record.
func (s *Store) TouchActive(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.After(s.record.LastActiveAt) {
		return nil
	}
	s.record.LastActiveAt = t
	return s.persist()
}

// MarkSynced records that the activity point t was acknowledged by the
// server. The value is clamped so lastSyncedAt <= lastActiveAt always
// holds, and it never moves backwards.
func (s *Store) MarkSynced(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.After(s.record.LastActiveAt) {
		t = s.record.LastActiveAt
	}
	if !t.After(s.record.LastSyncedAt) {
		return nil
	}
	s.record.LastSyncedAt = t
	return s.persist()
}

func (s *Store) SetStepCount(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.LastStepCount = v
	return s.persist()
}

func (s *Store) SetSyncLog(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.SyncLog = line
	return s.persist()
}

func (s *Store) SetMonitoringEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.MonitoringEnabled = enabled
	return s.persist()
}

// Configure stores the agent's server destination and timeout threshold.
func (s *Store) Configure(serverURL string, timeoutHours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.ServerURL = serverURL
	s.record.TimeoutHours = timeoutHours
	return s.persist()
}

// persist writes the record via temp-file + rename so a crash mid-write
// never leaves a truncated state file. Caller must hold the lock.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(&s.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
