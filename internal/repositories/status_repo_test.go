package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStatusRepo(t *testing.T) (*miniredis.Miniredis, *RedisStatusRepository) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisStatusRepository(client)
}

func TestStatusRepo_SweepRunRoundTrip(t *testing.T) {
	_, repo := setupStatusRepo(t)
	ctx := context.Background()

	ranAt := time.Now().Add(-10 * time.Second).UTC().Truncate(time.Second)
	require.NoError(t, repo.SetSweepRun(ctx, ranAt))

	status, err := repo.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsActive, "a recent sweep means the monitor is active")
	assert.True(t, status.LastRun.Equal(ranAt))
}

func TestStatusRepo_NoSweepYet(t *testing.T) {
	_, repo := setupStatusRepo(t)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.True(t, status.LastRun.IsZero())
}

func TestStatusRepo_StaleSweepReportedInactive(t *testing.T) {
	_, repo := setupStatusRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSweepRun(ctx, time.Now().Add(-time.Hour)))

	status, err := repo.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsActive, "an hour-old sweep means the loop is down")
}

func TestStatusRepo_PresenceExpires(t *testing.T) {
	mr, repo := setupStatusRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetPresence(ctx, "dev-1", 24*time.Hour))

	present, err := repo.IsPresent(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, present)

	// Past the device's timeout the key is gone, so presence can no
	// longer veto an alert.
	mr.FastForward(24*time.Hour + time.Second)

	present, err = repo.IsPresent(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestStatusRepo_UnknownDeviceNotPresent(t *testing.T) {
	_, repo := setupStatusRepo(t)

	present, err := repo.IsPresent(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, present)
}
