package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/vigil/internal/config"
	"github.com/prudhvinik1/vigil/internal/database"
	"github.com/prudhvinik1/vigil/internal/monitor"
	"github.com/prudhvinik1/vigil/internal/notifier"
	"github.com/prudhvinik1/vigil/internal/repositories"
	"github.com/prudhvinik1/vigil/internal/server"
	"github.com/prudhvinik1/vigil/internal/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to create postgres pool", zap.Error(err))
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	cipher, err := utils.NewSecretCipher(cfg.SecretKey)
	if err != nil {
		logger.Fatal("Failed to init secret cipher", zap.Error(err))
	}

	userRepo := repositories.NewPostgresUserRepository(postgresPool)
	statusRepo := repositories.NewRedisStatusRepository(redisClient)
	mailer := notifier.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SystemEmail, cfg.SystemPasswd, cipher, logger)
	mon := monitor.NewMonitor(userRepo, statusRepo, mailer, cfg.SweepInterval, logger)
	handler := server.NewHandler(userRepo, statusRepo, mailer, cipher, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler.Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := mon.Start(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
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
