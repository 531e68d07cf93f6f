package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/vigil/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	calls []string
	err   error
}

func (f *fakeAPI) Heartbeat(ctx context.Context, deviceID string) (*HeartbeatResult, error) {
	f.calls = append(f.calls, deviceID)
	if f.err != nil {
		return nil, f.err
	}
	return &HeartbeatResult{Status: "ok"}, nil
}

type fakeWarner struct {
	raised []string
}

func (f *fakeWarner) Warn(key string) {
	f.raised = append(f.raised, key)
}

type fakeSteps struct {
	sample float64
	ok     bool
}

func (f *fakeSteps) Read(ctx context.Context) (float64, bool) {
	return f.sample, f.ok
}

// writeState seeds the state file so the store loads a controlled record.
func writeState(t *testing.T, path string, record models.ActivityRecord) {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func newTestClient(t *testing.T, record models.ActivityRecord, api *fakeAPI, steps StepSource, interactive InteractiveSource, now time.Time) (*LivenessClient, *Store, *fakeWarner) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")
	writeState(t, path, record)

	store, err := OpenStore(path)
	require.NoError(t, err)

	warner := &fakeWarner{}
	client := NewLivenessClient(store, api, steps, interactive, warner, time.Hour, 3*time.Second, zap.NewNop())
	client.now = func() time.Time { return now }

	return client, store, warner
}

func baseRecord(active, synced time.Time) models.ActivityRecord {
	return models.ActivityRecord{
		DeviceID:          "dev-1",
		LastActiveAt:      active,
		LastSyncedAt:      synced,
		MonitoringEnabled: true,
		TimeoutHours:      24,
	}
}

func TestTick_MonitoringDisabled_IsNoOp(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active.Add(-time.Hour))
	record.MonitoringEnabled = false

	api := &fakeAPI{}
	client, _, warner := newTestClient(t, record, api, nil, nil, active.Add(time.Minute))

	err := client.Tick(context.Background())

	require.NoError(t, err)
	assert.Empty(t, api.calls, "disabled monitoring must not send heartbeats")
	assert.Empty(t, warner.raised)
}

func TestTick_UnsyncedActivity_SendsHeartbeatAndMarksSynced(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active.Add(-time.Hour))

	api := &fakeAPI{}
	client, store, _ := newTestClient(t, record, api, nil, nil, active.Add(time.Minute))

	err := client.Tick(context.Background())

	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "dev-1", api.calls[0])

	got := store.Snapshot()
	assert.True(t, got.LastSyncedAt.Equal(got.LastActiveAt), "sync point should be the pre-call active time")
	assert.False(t, got.LastSyncedAt.After(got.LastActiveAt), "lastSyncedAt <= lastActiveAt must hold")
	assert.Contains(t, got.SyncLog, "sync ok")
}

func TestTick_EqualTimestamps_NoHeartbeat(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active) // already reported

	api := &fakeAPI{}
	client, _, _ := newTestClient(t, record, api, nil, nil, active.Add(time.Minute))

	err := client.Tick(context.Background())

	require.NoError(t, err)
	assert.Empty(t, api.calls, "an equal activity point was already reported")
}

func TestTick_SecondTickWithoutActivity_IsIdempotent(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active.Add(-time.Hour))

	api := &fakeAPI{}
	client, _, _ := newTestClient(t, record, api, nil, nil, active.Add(time.Minute))

	require.NoError(t, client.Tick(context.Background()))
	require.NoError(t, client.Tick(context.Background()))

	assert.Len(t, api.calls, 1, "no second heartbeat without intervening activity")
}

func TestTick_NetworkFailure_KeepsSyncStateAndStillWarns(t *testing.T) {
	// Place the record inside the warning band: 23h30m of 24h elapsed.
	now := time.Date(2026, 8, 2, 11, 30, 0, 0, time.UTC)
	active := now.Add(-23*time.Hour - 30*time.Minute)
	record := baseRecord(active, active.Add(-time.Hour))

	api := &fakeAPI{err: errors.New("connection refused")}
	client, store, warner := newTestClient(t, record, api, nil, nil, now)

	err := client.Tick(context.Background())

	require.NoError(t, err, "a failed network call is not a tick error")
	require.Len(t, api.calls, 1)

	got := store.Snapshot()
	assert.True(t, got.LastSyncedAt.Equal(record.LastSyncedAt), "failed sync must not advance lastSyncedAt")
	assert.Contains(t, got.SyncLog, "sync failed")
	assert.Equal(t, []string{WarningKey}, warner.raised, "warning check runs after a failed sync")
}

func TestTick_FailedSync_RetriesNextTick(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active.Add(-time.Hour))

	api := &fakeAPI{err: errors.New("timeout")}
	client, _, _ := newTestClient(t, record, api, nil, nil, active.Add(time.Minute))

	require.NoError(t, client.Tick(context.Background()))
	api.err = nil
	require.NoError(t, client.Tick(context.Background()))

	assert.Len(t, api.calls, 2, "unsynced point re-attempts on the next tick")
}

func TestTick_StepIncrease_DetectsActivityAndStampsNow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	active := now.Add(-2 * time.Hour)
	record := baseRecord(active, active) // otherwise in sync
	record.LastStepCount = 100

	api := &fakeAPI{}
	steps := &fakeSteps{sample: 105, ok: true}
	client, store, _ := newTestClient(t, record, api, steps, nil, now)

	err := client.Tick(context.Background())

	require.NoError(t, err)
	assert.Len(t, api.calls, 1, "a step increase is new activity")

	got := store.Snapshot()
	assert.True(t, got.LastActiveAt.Equal(now), "step increase stamps lastActiveAt to the tick time")
	assert.Equal(t, 105.0, got.LastStepCount)
	assert.False(t, got.LastSyncedAt.After(got.LastActiveAt))
}

func TestTick_StepDecrease_TreatedAsNoNewData(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active)
	record.LastStepCount = 100

	api := &fakeAPI{}
	steps := &fakeSteps{sample: 40, ok: true} // counter reset after reboot
	client, store, _ := newTestClient(t, record, api, steps, nil, active.Add(time.Minute))

	err := client.Tick(context.Background())

	require.NoError(t, err)
	assert.Empty(t, api.calls, "a decreased counter is not negative activity")
	assert.Equal(t, 40.0, store.Snapshot().LastStepCount, "sample is persisted regardless")
}

func TestTick_FirstStepSample_NotActivity(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active)
	record.LastStepCount = 0 // never sampled before

	api := &fakeAPI{}
	steps := &fakeSteps{sample: 5000, ok: true}
	client, store, _ := newTestClient(t, record, api, steps, nil, active.Add(time.Minute))

	require.NoError(t, client.Tick(context.Background()))

	assert.Empty(t, api.calls)
	assert.Equal(t, 5000.0, store.Snapshot().LastStepCount)
}

func TestTick_StepSampleUnavailable_Skipped(t *testing.T) {
	active := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := baseRecord(active, active)
	record.LastStepCount = 100

	api := &fakeAPI{}
	steps := &fakeSteps{ok: false}
	client, store, _ := newTestClient(t, record, api, steps, nil, active.Add(time.Minute))

	require.NoError(t, client.Tick(context.Background()))

	assert.Empty(t, api.calls)
	assert.Equal(t, 100.0, store.Snapshot().LastStepCount, "absent sample leaves the stored count alone")
}

func TestTick_InteractiveSignal_StampsAndSyncs(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	active := now.Add(-3 * time.Hour)
	record := baseRecord(active, active)

	api := &fakeAPI{}
	interactive := InteractiveSourceFunc(func() bool { return true })
	client, store, _ := newTestClient(t, record, api, nil, interactive, now)

	err := client.Tick(context.Background())

	require.NoError(t, err)
	assert.Len(t, api.calls, 1)

	got := store.Snapshot()
	assert.True(t, got.LastActiveAt.Equal(now))
	assert.True(t, got.LastSyncedAt.Equal(now))
}

func TestTick_WarningBandBoundaries(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		elapsed  time.Duration
		expected bool
	}{
		{"before band", 22 * time.Hour, false},
		{"lower bound inclusive", 23 * time.Hour, true},
		{"inside band", 23*time.Hour + 30*time.Minute, true},
		{"upper bound exclusive", 24 * time.Hour, false},
		{"past timeout", 25 * time.Hour, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := baseRecord(base, base) // nothing to sync
			api := &fakeAPI{}
			client, _, warner := newTestClient(t, record, api, nil, nil, base.Add(tc.elapsed))

			require.NoError(t, client.Tick(context.Background()))

			if tc.expected {
				assert.Equal(t, []string{WarningKey}, warner.raised)
			} else {
				assert.Empty(t, warner.raised)
			}
		})
	}
}

func TestTick_InvariantHoldsAfterAnyTick(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	scenarios := []struct {
		name string
		api  *fakeAPI
	}{
		{"sync succeeds", &fakeAPI{}},
		{"sync fails", &fakeAPI{err: errors.New("boom")}},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			record := baseRecord(now.Add(-time.Hour), now.Add(-2*time.Hour))
			client, store, _ := newTestClient(t, record, sc.api, &fakeSteps{sample: 10, ok: true}, nil, now)

			require.NoError(t, client.Tick(context.Background()))

			got := store.Snapshot()
			assert.False(t, got.LastSyncedAt.After(got.LastActiveAt))
		})
	}
}
