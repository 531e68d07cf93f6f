package models

import (
	"time"
)

// MonitorStatus describes the reconciliation loop for the /api/ping probe.
type MonitorStatus struct {
	IsActive  bool      `json:"isActive"`
	LastRun   time.Time `json:"lastRun"`
	Timestamp time.Time `json:"timestamp"`
}
