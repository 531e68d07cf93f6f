package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/vigil/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sweepStatusKey    = "vigil:monitor:status"
	presenceKeyPrefix = "vigil:presence:"

	// A monitor that has not completed a sweep within this window is
	// reported as inactive by /api/ping.
	sweepStaleAfter = 5 * time.Minute
)

type RedisStatusRepository struct {
	client *redis.Client
}

func NewRedisStatusRepository(client *redis.Client) *RedisStatusRepository {
	return &RedisStatusRepository{client: client}
}

func (r *RedisStatusRepository) SetSweepRun(ctx context.Context, ranAt time.Time) error {
	data, err := json.Marshal(models.MonitorStatus{
		IsActive:  true,
		LastRun:   ranAt,
		Timestamp: ranAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sweep status: %w", err)
	}

	if err := r.client.Set(ctx, sweepStatusKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set sweep status: %w", err)
	}
	return nil
}

func (r *RedisStatusRepository) GetStatus(ctx context.Context) (*models.MonitorStatus, error) {
	now := time.Now()

	data, err := r.client.Get(ctx, sweepStatusKey).Result()
	if err == redis.Nil {
		// No sweep has ever completed
		return &models.MonitorStatus{IsActive: false, Timestamp: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep status: %w", err)
	}

	var status models.MonitorStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sweep status: %w", err)
	}

	status.IsActive = now.Sub(status.LastRun) < sweepStaleAfter
	status.Timestamp = now
	return &status, nil
}

// SetPresence marks a device as recently alive. The TTL is the device's
// own timeout, so key existence alone means "cannot be overdue".
func (r *RedisStatusRepository) SetPresence(ctx context.Context, deviceID string, ttl time.Duration) error {
	key := presenceKey(deviceID)
	if err := r.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *RedisStatusRepository) IsPresent(ctx context.Context, deviceID string) (bool, error) {
	n, err := r.client.Exists(ctx, presenceKey(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}

// Helper: build Redis key for presence
func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID
}
