package agent

import (
	"context"

	"go.uber.org/zap"
)

// StepSource reads the current monotonic step-counter value. The read is
// best-effort and bounded by the context deadline; ok is false when no
// sample is available in time, which is not an error.
type StepSource interface {
	Read(ctx context.Context) (sample float64, ok bool)
}

// InteractiveSource reports whether the device is currently being used in
// the foreground. This is the strongest activity signal.
type InteractiveSource interface {
	Interactive() bool
}

// Warner displays a high-priority interruptive prompt identified by a
// fixed key. Implementations must be idempotent when re-invoked with the
// same key while the warning is still due.
type Warner interface {
	Warn(key string)
}

// StepSourceFunc adapts a function to the StepSource interface.
type StepSourceFunc func(ctx context.Context) (float64, bool)

func (f StepSourceFunc) Read(ctx context.Context) (float64, bool) { return f(ctx) }

// InteractiveSourceFunc adapts a function to the InteractiveSource interface.
type InteractiveSourceFunc func() bool

func (f InteractiveSourceFunc) Interactive() bool { return f() }

// NoStepSource is a StepSource for hosts without a step counter.
type NoStepSource struct{}

func (NoStepSource) Read(context.Context) (float64, bool) { return 0, false }

// LogWarner surfaces the warning through the logger. The fixed key makes
// repeated raises collapse to the same warning in any downstream dedupe.
type LogWarner struct {
	Logger *zap.Logger
}

func (w LogWarner) Warn(key string) {
	w.Logger.Warn("inactivity warning: confirm you are safe",
		zap.String("warning_key", key),
	)
}
