// Package app wires configuration into the running object graph shared by
// the server and worker binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/config"
	"github.com/unclebandit/campaign-mailer/internal/controller"
	"github.com/unclebandit/campaign-mailer/internal/db"
	"github.com/unclebandit/campaign-mailer/internal/handler"
	"github.com/unclebandit/campaign-mailer/internal/llm"
	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/mailer"
	"github.com/unclebandit/campaign-mailer/internal/metrics"
	"github.com/unclebandit/campaign-mailer/internal/queue"
	"github.com/unclebandit/campaign-mailer/internal/rate"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

const relayWindow = time.Minute

// Container holds the wired dependencies.
type Container struct {
	Config config.Config
	DB     *sql.DB
	Queue  queue.Queue

	Contacts  *repository.ContactRepository
	Templates *repository.TemplateRepository
	Campaigns *repository.CampaignRepository
	Logs      *repository.EmailLogRepository

	Delivery   *mailer.DeliveryService
	Completer  *llm.OllamaCompleter
	Dispatcher *service.Dispatcher

	CampaignService  *service.CampaignService
	ContactService   *service.ContactService
	TemplateService  *service.TemplateService
	DashboardService *service.DashboardService
	EmailLogService  *service.EmailLogService

	redis *rdb.Client
	log   *zap.Logger
}

// New opens the store, applies migrations and builds every service. The
// caller owns the returned container and must Close it.
func New(ctx context.Context, cfg config.Config) (*Container, error) {
	c := &Container{Config: cfg, log: logger.Named("app")}

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.DB = conn
	if err := db.Migrate(ctx, conn, cfg.DBDriver); err != nil {
		c.Close()
		return nil, err
	}

	c.Contacts = &repository.ContactRepository{DB: conn}
	c.Templates = &repository.TemplateRepository{DB: conn}
	c.Campaigns = &repository.CampaignRepository{DB: conn}
	c.Logs = &repository.EmailLogRepository{DB: conn}

	sender := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		UseTLS:   cfg.SMTPUseTLS,
		Timeout:  cfg.SMTPTimeout,
	})
	c.Delivery = mailer.NewDeliveryService(sender, c.limiter(ctx), cfg.SenderAddress(), cfg.SMTPTimeout)

	var completer llm.Completer
	if c.Completer, err = llm.NewOllamaCompleter(cfg.OllamaHost, cfg.OllamaModel, nil); err != nil {
		c.log.Warn("⚠️ AI personalization disabled", logger.Err(err))
	} else {
		completer = c.Completer
	}
	personalizer := service.NewPersonalizationService(completer, cfg.OllamaModel, cfg.OllamaTemperature, cfg.LLMTimeout)

	switch cfg.QueueDriver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Queue = q
	default:
		c.Queue = queue.NewInMemoryQueue()
	}

	c.Dispatcher = service.NewDispatcher(c.Campaigns, c.Templates, c.Logs, personalizer, c.Delivery, c.Queue)
	c.Dispatcher.Topic = cfg.QueueName
	c.Dispatcher.Concurrency = cfg.DispatchConcurrency

	c.CampaignService = &service.CampaignService{
		CampaignRepo: c.Campaigns,
		ContactRepo:  c.Contacts,
		TemplateRepo: c.Templates,
		LogRepo:      c.Logs,
		Personalizer: personalizer,
		Dispatcher:   c.Dispatcher,
	}
	c.ContactService = &service.ContactService{ContactRepo: c.Contacts}
	c.TemplateService = &service.TemplateService{TemplateRepo: c.Templates}
	c.DashboardService = &service.DashboardService{
		ContactRepo:  c.Contacts,
		TemplateRepo: c.Templates,
		CampaignRepo: c.Campaigns,
		LogRepo:      c.Logs,
	}
	c.EmailLogService = &service.EmailLogService{LogRepo: c.Logs}
	return c, nil
}

// limiter builds the relay limiter. A zero rate disables limiting, and an
// unreachable Redis falls back to a per-process window.
func (c *Container) limiter(ctx context.Context) rate.Limiter {
	cfg := c.Config
	if cfg.RateLimitPerMinute == 0 {
		return nil
	}
	if cfg.RateLimitBackend == "redis" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err == nil {
			c.redis = client
			c.log.Info("✅ Relay rate limit shared through Redis", zap.String("addr", cfg.RedisAddr), zap.Int("per_minute", cfg.RateLimitPerMinute))
			return rate.NewRedisLimiter(client, "mailer:relay:", cfg.RateLimitPerMinute, relayWindow)
		}
		client.Close()
		c.log.Warn("⚠️ Redis unavailable, using in-process rate limit", zap.String("addr", cfg.RedisAddr), logger.Err(err))
	}
	return rate.NewMemoryLimiter(cfg.RateLimitPerMinute, relayWindow)
}

// StartWorker subscribes the dispatcher to the queue in this process.
func (c *Container) StartWorker(ctx context.Context) error {
	return service.NewWorker(c.Queue, c.Dispatcher, c.Config.DispatchRecoverOnStart).Start(ctx)
}

// Router builds the HTTP API.
func (c *Container) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	(&controller.ContactController{ContactService: c.ContactService}).Mount(r)
	(&controller.TemplateController{TemplateService: c.TemplateService}).Mount(r)
	(&controller.CampaignController{CampaignService: c.CampaignService}).Mount(r)
	(&controller.EmailController{EmailLogService: c.EmailLogService}).Mount(r)

	campaignHandler := handler.NewCampaignHandler(c.CampaignService)
	dashboardHandler := &handler.DashboardHandler{Service: c.DashboardService}
	r.Get("/emails/campaign/{id}/stats", campaignHandler.GetCampaignStatsHandler)
	r.Get("/dashboard/stats", dashboardHandler.GetStatsHandler)

	r.Method(http.MethodGet, "/health", c.healthHandler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (c *Container) healthHandler() *handler.HealthHandler {
	checks := []handler.Check{
		{Name: "database", Critical: true, Probe: c.DB.PingContext},
		{Name: "smtp", Probe: c.Delivery.Ping},
	}
	if c.Completer != nil {
		checks = append(checks, handler.Check{Name: "ollama", Probe: c.Completer.Ping})
	}
	return &handler.HealthHandler{Checks: checks, Timeout: 5 * time.Second}
}

// Close releases the queue, Redis and the database in that order.
func (c *Container) Close() error {
	var errs []error
	if c.Queue != nil {
		errs = append(errs, c.Queue.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: close: %w", err)
	}
	return nil
}
