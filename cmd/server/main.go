// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/app"
	"github.com/unclebandit/campaign-mailer/internal/config"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	env := "dev"
	if cfg.IsProduction() {
		env = "prod"
	}
	logger.Init(logger.Config{Env: env, Level: cfg.LogLevel, ServiceName: "campaign-mailer"})
	defer logger.Sync()
	log := logger.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("❌ Startup failed", zap.Error(err))
	}
	defer c.Close()

	// With the memory queue jobs only exist in this process, so it runs the
	// dispatcher itself. With AMQP the worker binary consumes instead.
	if cfg.QueueDriver == "memory" {
		if err := c.StartWorker(ctx); err != nil {
			log.Fatal("❌ Failed to start dispatch worker", zap.Error(err))
		}
	} else {
		log.Info("📤 Publishing dispatch jobs to RabbitMQ", zap.String("queue", cfg.QueueName))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
