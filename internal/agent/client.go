package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// WarningKey is the fixed identifier of the local inactivity warning; the
// presentation layer dedupes on it.
const WarningKey = "vigil-inactivity-warning"

// HeartbeatSender is the slice of the server API the tick needs.
type HeartbeatSender interface {
	Heartbeat(ctx context.Context, deviceID string) (*HeartbeatResult, error)
}

// LivenessClient runs the per-tick decision logic: stamp fresh activity,
// decide whether the local record holds an unsynced activity point, push a
// heartbeat when it does, and raise the local warning near the timeout
// boundary.
//
// Ticks are serialized by the scheduler; this type assumes no two
// concurrent Tick calls.
type LivenessClient struct {
	store       *Store
	api         HeartbeatSender
	steps       StepSource
	interactive InteractiveSource
	warner      Warner

	warningLead time.Duration
	stepTimeout time.Duration
	logger      *zap.Logger

	now func() time.Time
}

func NewLivenessClient(
	store *Store,
	api HeartbeatSender,
	steps StepSource,
	interactive InteractiveSource,
	warner Warner,
	warningLead time.Duration,
	stepTimeout time.Duration,
	logger *zap.Logger,
) *LivenessClient {
	return &LivenessClient{
		store:       store,
		api:         api,
		steps:       steps,
		interactive: interactive,
		warner:      warner,
		warningLead: warningLead,
		stepTimeout: stepTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Tick runs one evaluation. It only returns an error for local storage
// failures; a failed network call is recorded and absorbed so the warning
// check below always runs and the next tick naturally retries.
func (c *LivenessClient) Tick(ctx context.Context) error {
	record := c.store.Snapshot()
	if !record.MonitoringEnabled {
		return nil
	}

	now := c.now()

	// Foreground use is the strongest activity signal: stamp immediately.
	if c.interactive != nil && c.interactive.Interactive() {
		if err := c.store.TouchActive(now); err != nil {
			return err
		}
		record = c.store.Snapshot()
	}

	// Strict greater-than: an equal timestamp was already reported, and
	// re-reporting it would let the server's heartbeat creep forward from
	// stale data, permanently defeating the timeout.
	activityDetected := record.Unsynced()

	if c.steps != nil {
		stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
		sample, ok := c.steps.Read(stepCtx)
		cancel()
		if ok {
			if record.LastStepCount > 0 && sample > record.LastStepCount {
				// A step increase is evidence of current motion, not just
				// a past event: stamp the activity time too.
				activityDetected = true
				if err := c.store.TouchActive(now); err != nil {
					return err
				}
				c.logger.Debug("activity detected: steps increased",
					zap.Float64("from", record.LastStepCount),
					zap.Float64("to", sample),
				)
			}
			// The sample is persisted regardless of the detection branch.
			if err := c.store.SetStepCount(sample); err != nil {
				return err
			}
		}
	}

	record = c.store.Snapshot()

	if activityDetected {
		// Capture the sync point before the network call so activity that
		// happens mid-request is not marked as synced.
		syncPoint := record.LastActiveAt

		if _, err := c.api.Heartbeat(ctx, record.DeviceID); err != nil {
			// No retry within this tick and no abort: lastSyncedAt stays
			// put, so the next scheduled tick re-attempts.
			c.logger.Warn("heartbeat failed", zap.Error(err))
			if err := c.store.SetSyncLog(fmt.Sprintf("[%s] sync failed: %v", now.Format("2006-01-02 15:04:05"), err)); err != nil {
				return err
			}
		} else {
			if err := c.store.MarkSynced(syncPoint); err != nil {
				return err
			}
			if err := c.store.SetSyncLog(fmt.Sprintf("[%s] sync ok", now.Format("2006-01-02 15:04:05"))); err != nil {
				return err
			}
			c.logger.Debug("heartbeat sent", zap.Time("sync_point", syncPoint))
		}
	}

	c.checkWarningBand(now)
	return nil
}

// checkWarningBand raises the local prompt inside the half-open band
// [timeout-lead, timeout). Re-raising across ticks while still in-band is
// acceptable; the warner is idempotent per key.
func (c *LivenessClient) checkWarningBand(now time.Time) {
	record := c.store.Snapshot()
	if record.TimeoutHours <= 0 || c.warner == nil {
		return
	}

	diff := now.Sub(record.LastActiveAt)
	timeout := record.TimeoutDuration()

	if diff >= timeout-c.warningLead && diff < timeout {
		c.warner.Warn(WarningKey)
	}
}
