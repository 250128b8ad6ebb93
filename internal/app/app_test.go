package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/app"
	"github.com/unclebandit/campaign-mailer/internal/config"
	"github.com/unclebandit/campaign-mailer/internal/rate"
)

func testConfig() config.Config {
	return config.Config{
		DBDriver:               "sqlite3",
		DatabaseURL:            ":memory:",
		QueueDriver:            "memory",
		QueueName:              "dispatch_test",
		SMTPHost:               "localhost",
		SMTPPort:               2525,
		SMTPFrom:               "noreply@x.io",
		SMTPTimeout:            time.Second,
		OllamaHost:             "http://localhost:11434",
		OllamaModel:            "llama2",
		LLMTimeout:             time.Second,
		RateLimitBackend:       "memory",
		DispatchConcurrency:    2,
		DispatchRecoverOnStart: true,
	}
}

func TestNewWiresContainer(t *testing.T) {
	ctx := context.Background()
	c, err := app.New(ctx, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	assert.Equal(t, "dispatch_test", c.Dispatcher.Topic)
	assert.Equal(t, 2, c.Dispatcher.Concurrency)
	assert.NotNil(t, c.Completer)
	assert.Nil(t, c.Delivery.Limiter, "a zero rate disables limiting")
	require.NoError(t, c.StartWorker(ctx))

	router := c.Router()
	for _, path := range []string{"/dashboard/stats", "/contacts", "/templates", "/campaigns", "/emails", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(w.Body.String(), "mailer_http_requests_total"))
}

func TestNewUsesMemoryLimiterWhenRateSet(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 30
	c, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, ok := c.Delivery.Limiter.(*rate.MemoryLimiter)
	assert.True(t, ok)
}

func TestNewRejectsUnreachableStore(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = ""
	_, err := app.New(context.Background(), cfg)
	assert.Error(t, err)
}
