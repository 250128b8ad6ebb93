package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/app"
	"github.com/unclebandit/campaign-mailer/internal/config"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	env := "dev"
	if cfg.IsProduction() {
		env = "prod"
	}
	logger.Init(logger.Config{Env: env, Level: cfg.LogLevel, ServiceName: "campaign-mailer-worker"})
	defer logger.Sync()
	log := logger.Named("worker")

	if err := checkQueueDriver(cfg); err != nil {
		log.Fatal("❌ Worker cannot start", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("❌ Startup failed", zap.Error(err))
	}
	defer c.Close()

	if err := c.StartWorker(ctx); err != nil {
		log.Fatal("❌ Failed to start dispatch worker", zap.Error(err))
	}

	log.Info("Worker running, waiting for campaigns...", zap.String("queue", cfg.QueueName), zap.Int("concurrency", cfg.DispatchConcurrency))
	<-ctx.Done()
	log.Info("🛑 Worker stopping; unfinished campaigns resume on next start")
}
