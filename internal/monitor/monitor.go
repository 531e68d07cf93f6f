package monitor

import (
	"context"
	"time"

	"github.com/prudhvinik1/vigil/internal/models"
	"github.com/prudhvinik1/vigil/internal/notifier"
	"github.com/prudhvinik1/vigil/internal/repositories"
	"go.uber.org/zap"
)

// Monitor is the reconciliation loop: a fixed-period sweep over all user
// records driving the Live <-> Alerting state machine.
//
// Transitions are committed conservatively: Live -> Alerting only after the
// alert email was accepted for delivery, so a failed send is retried on the
// next sweep rather than silently dropped.
type Monitor struct {
	users    repositories.UserRepository
	status   repositories.StatusRepository
	notifier notifier.Notifier
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time
}

func NewMonitor(
	users repositories.UserRepository,
	status repositories.StatusRepository,
	n notifier.Notifier,
	interval time.Duration,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		users:    users,
		status:   status,
		notifier: n,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs an immediate sweep, then one per interval until the context
// is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("starting monitor", zap.Duration("interval", m.interval))

	m.Sweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep evaluates every user record once. A failure on one record never
// aborts the pass for the others.
func (m *Monitor) Sweep(ctx context.Context) {
	now := m.now()

	users, err := m.users.List(ctx)
	if err != nil {
		m.logger.Error("sweep failed to list users", zap.Error(err))
		return
	}

	for _, user := range users {
		if err := m.checkUser(ctx, user, now); err != nil {
			m.logger.Error("failed to process user, continuing sweep",
				zap.String("device_id", user.DeviceID),
				zap.Error(err),
			)
		}
	}

	if err := m.status.SetSweepRun(ctx, now); err != nil {
		m.logger.Warn("failed to record sweep run", zap.Error(err))
	}
}

func (m *Monitor) checkUser(ctx context.Context, user *models.User, now time.Time) error {
	diff := now.Sub(user.LastHeartbeat)
	timeout := user.TimeoutDuration()

	switch {
	case diff > timeout && !user.IsAlerting:
		return m.raiseAlert(ctx, user, now, diff)

	case diff <= timeout && user.IsAlerting:
		// Fallback recovery: the heartbeat handler normally clears the
		// flag synchronously, but a registration or a direct DB change
		// can also make the user fresh again.
		return m.resolveAlert(ctx, user)

	default:
		return nil
	}
}

func (m *Monitor) raiseAlert(ctx context.Context, user *models.User, now time.Time, diff time.Duration) error {
	// A heartbeat that landed after the List snapshot shows up in the
	// presence cache; skip instead of alerting on a stale row.
	if present, err := m.status.IsPresent(ctx, user.DeviceID); err == nil && present {
		return nil
	}

	m.logger.Info("user is inactive, sending alert",
		zap.String("device_id", user.DeviceID),
		zap.String("user_name", user.UserName),
		zap.Int64("inactive_hours", int64(diff.Hours())),
	)

	if !m.notifier.Send(ctx, user, notifier.KindAlert, diff) {
		// Leave is_alerting false so the next sweep retries.
		m.logger.Warn("alert dispatch failed, will retry next sweep",
			zap.String("device_id", user.DeviceID),
		)
		return nil
	}

	committed, err := m.users.MarkAlerting(ctx, user.DeviceID, user.LastHeartbeat, now)
	if err != nil {
		return err
	}
	if !committed {
		// A concurrent heartbeat moved last_heartbeat; the user is live.
		m.logger.Info("alert state not committed, heartbeat raced the sweep",
			zap.String("device_id", user.DeviceID),
		)
		return nil
	}

	m.logger.Info("alert sent",
		zap.String("device_id", user.DeviceID),
		zap.String("user_name", user.UserName),
		zap.Int64("inactive_hours", int64(diff.Hours())),
	)
	return nil
}

func (m *Monitor) resolveAlert(ctx context.Context, user *models.User) error {
	m.logger.Info("user recovered, sending resolved email",
		zap.String("device_id", user.DeviceID),
		zap.String("user_name", user.UserName),
	)

	if !m.notifier.Send(ctx, user, notifier.KindResolved, 0) {
		return nil
	}

	if _, err := m.users.ClearAlerting(ctx, user.DeviceID); err != nil {
		return err
	}
	return nil
}
