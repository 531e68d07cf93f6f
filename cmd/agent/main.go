package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/vigil/internal/agent"
	"github.com/prudhvinik1/vigil/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadAgentConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	store, err := agent.OpenStore(cfg.StateFile)
	if err != nil {
		logger.Fatal("Failed to open activity store", zap.Error(err))
	}
	if err := store.Configure(cfg.ServerURL, cfg.TimeoutHours); err != nil {
		logger.Fatal("Failed to store configuration", zap.Error(err))
	}

	api := agent.NewAPIClient(cfg.ServerURL, requestTimeout)

	client := agent.NewLivenessClient(
		store,
		api,
		agent.NoStepSource{},
		nil,
		agent.LogWarner{Logger: logger},
		cfg.WarningLead,
		cfg.StepReadTimeout,
		logger,
	)

	// Registration rides the tick loop so a server that was down at
	// startup is retried until it accepts the config.
	registered := false
	tick := func(ctx context.Context) error {
		if !registered {
			err := api.Register(ctx, agent.RegisterRequest{
				DeviceID:       store.DeviceID(),
				UserName:       cfg.UserName,
				TimeoutHours:   cfg.TimeoutHours,
				EmergencyEmail: cfg.EmergencyEmail,
			})
			if err != nil {
				logger.Warn("registration failed, will retry", zap.Error(err))
			} else {
				registered = true
				logger.Info("registered with server",
					zap.String("device_id", store.DeviceID()),
					zap.Int("timeout_hours", cfg.TimeoutHours),
				)
			}
		}
		return client.Tick(ctx)
	}

	sched := agent.NewScheduler(cfg.TickInterval, tick, logger)

	// SIGUSR1 is the activity event: stamp the record and request an
	// immediate tick.
	activity := make(chan os.Signal, 1)
	signal.Notify(activity, syscall.SIGUSR1)
	go func() {
		for range activity {
			if err := store.TouchActive(time.Now()); err != nil {
				logger.Error("failed to stamp activity", zap.Error(err))
				continue
			}
			logger.Info("activity event received")
			sched.Kick()
		}
	}()

	logger.Info("agent started",
		zap.String("device_id", store.DeviceID()),
		zap.String("server_url", cfg.ServerURL),
	)

	if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
		logger.Fatal("scheduler error", zap.Error(err))
	}

	logger.Info("agent stopped gracefully")
}

func initLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}
