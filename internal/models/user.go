package models

import (
	"time"
)

// User is the server-side record for one monitored device.
//
// IsAlerting is true strictly between "alert email sent" and "recovery
// observed". LastAlertTime is informational only; re-alert suppression is
// purely via IsAlerting.
type User struct {
	DeviceID      string     `json:"device_id"`
	UserName      string     `json:"user_name"`
	TimeoutHours  int        `json:"timeout_hours"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	IsAlerting    bool       `json:"is_alerting"`
	LastAlertTime *time.Time `json:"last_alert_time,omitempty"`

	// EncryptedContact is the emergency destination, encrypted at rest.
	EncryptedContact *string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TimeoutDuration converts the configured threshold to a duration.
func (u *User) TimeoutDuration() time.Duration {
	return time.Duration(u.TimeoutHours) * time.Hour
}

// Overdue reports whether the user has been silent past their threshold.
func (u *User) Overdue(now time.Time) bool {
	return now.Sub(u.LastHeartbeat) > u.TimeoutDuration()
}
