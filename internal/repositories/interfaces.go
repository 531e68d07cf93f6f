package repositories

import (
	"context"
	"time"

	"github.com/prudhvinik1/vigil/internal/models"
)

type UserRepository interface {
	// Upsert registers or reconfigures a device and resets its heartbeat
	// to now.
	Upsert(ctx context.Context, user *models.User) error
	GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)

	// RecordHeartbeat stamps last_heartbeat and clears is_alerting in one
	// atomic write, returning the prior alerting flag.
	RecordHeartbeat(ctx context.Context, deviceID string, now time.Time) (wasAlerting bool, lastHeartbeat time.Time, err error)

	// MarkAlerting flips a user into the alerting state, guarded on the
	// heartbeat value the sweep evaluated. Returns false when a concurrent
	// heartbeat won the race and the write was a no-op.
	MarkAlerting(ctx context.Context, deviceID string, evaluatedHeartbeat time.Time, now time.Time) (bool, error)

	// ClearAlerting is the sweep's fallback recovery transition. Returns
	// false when the user was no longer alerting.
	ClearAlerting(ctx context.Context, deviceID string) (bool, error)
}

type StatusRepository interface {
	// SetSweepRun records the completion time of a reconciliation pass.
	SetSweepRun(ctx context.Context, ranAt time.Time) error
	GetStatus(ctx context.Context) (*models.MonitorStatus, error)

	// SetPresence marks a device as recently alive with a TTL; the sweep
	// treats an existing presence key as proof the device is not overdue.
	SetPresence(ctx context.Context, deviceID string, ttl time.Duration) error
	IsPresent(ctx context.Context, deviceID string) (bool, error)
}
