package agent

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler invokes the tick at a bounded minimum period and supports an
// immediate one-off invocation triggered by an activity event. Ticks are
// serialized: the next one never starts before the previous returns.
type Scheduler struct {
	interval time.Duration
	tick     func(ctx context.Context) error
	kick     chan struct{}
	logger   *zap.Logger
}

func NewScheduler(interval time.Duration, tick func(ctx context.Context) error, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		tick:     tick,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Kick requests an immediate tick. Non-blocking; a kick while one is
// already pending is coalesced.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run executes ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	s.runTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		case <-s.kick:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if err := s.tick(ctx); err != nil {
		s.logger.Error("tick failed", zap.Error(err))
	}
}
