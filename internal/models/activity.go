package models

import (
	"time"
)

// ActivityRecord is the device-local liveness bookkeeping, one per
// installation.
//
// Invariants (enforced by the agent store, not at call sites):
//   - LastActiveAt only moves forward.
//   - LastSyncedAt <= LastActiveAt, advanced only after a heartbeat the
//     server acknowledged.
type ActivityRecord struct {
	DeviceID     string    `json:"device_id"`
	LastActiveAt time.Time `json:"last_active_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`

	// LastStepCount is the last observed monotonic step-counter reading.
	// The counter is uptime-scoped and may reset on reboot; a decrease is
	// treated as "no new data", never as negative activity.
	LastStepCount float64 `json:"last_step_count"`

	MonitoringEnabled bool   `json:"monitoring_enabled"`
	TimeoutHours      int    `json:"timeout_hours"`
	ServerURL         string `json:"server_url"`

	// SyncLog is a human-readable last-sync status line, UI-only.
	SyncLog string `json:"sync_log"`
}

// TimeoutDuration converts the configured threshold to a duration.
func (r *ActivityRecord) TimeoutDuration() time.Duration {
	return time.Duration(r.TimeoutHours) * time.Hour
}

// Unsynced reports whether there is an activity point not yet reported.
// Strict greater-than: equality means the point was already synced and
// re-reporting it would let the server's heartbeat creep forward from
// stale data.
func (r *ActivityRecord) Unsynced() bool {
	return r.LastActiveAt.After(r.LastSyncedAt)
}
