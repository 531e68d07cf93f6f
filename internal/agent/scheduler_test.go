package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduler_RunsImmediatelyAndOnKick(t *testing.T) {
	var ticks atomic.Int64
	tick := func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}

	s := NewScheduler(time.Hour, tick, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 1 },
		time.Second, 5*time.Millisecond, "first tick runs without waiting a full period")

	s.Kick()
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 },
		time.Second, 5*time.Millisecond, "kick triggers an immediate tick")

	cancel()
	<-done
}

func TestScheduler_KickWhilePendingCoalesces(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context) error { return nil }, zap.NewNop())

	// Not running: the buffered kick accepts one request and drops the
	// rest instead of blocking the caller.
	s.Kick()
	s.Kick()
	s.Kick()

	assert.Len(t, s.kick, 1)
}
