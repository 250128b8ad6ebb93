package mailer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/mailer"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/rate"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Ping(context.Context) error { return f.err }

type slowSender struct{}

func (slowSender) Send(ctx context.Context, _ mailer.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDeliverDryRunDoesNotSend(t *testing.T) {
	sender := &fakeSender{}
	svc := mailer.NewDeliveryService(sender, nil, "noreply@x.io", time.Second)

	res := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io", Subject: "Hi", Body: "Hello"}, true)
	assert.Equal(t, model.EmailSent, res.Status)
	assert.Empty(t, res.Error)
	assert.Empty(t, sender.sent)
}

func TestDeliverRejectsInvalidAddressInBothModes(t *testing.T) {
	sender := &fakeSender{}
	svc := mailer.NewDeliveryService(sender, nil, "noreply@x.io", time.Second)

	for _, dryRun := range []bool{true, false} {
		res := svc.Deliver(context.Background(), mailer.Message{To: "bad-address", Subject: "Hi"}, dryRun)
		assert.Equal(t, model.EmailFailed, res.Status)
		assert.Equal(t, mailer.ErrInvalidRecipient, res.Error)
	}
	assert.Empty(t, sender.sent)
}

func TestDeliverLiveUsesDefaultFrom(t *testing.T) {
	sender := &fakeSender{}
	svc := mailer.NewDeliveryService(sender, nil, "noreply@x.io", time.Second)

	res := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io", Subject: "Hi", Body: "Hello"}, false)
	assert.Equal(t, model.EmailSent, res.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "noreply@x.io", sender.sent[0].From)

	res = svc.Deliver(context.Background(), mailer.Message{To: "b@x.io", From: "team@x.io"}, false)
	assert.Equal(t, model.EmailSent, res.Status)
	assert.Equal(t, "team@x.io", sender.sent[1].From)
}

func TestDeliverConvertsRelayErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("535 authentication failed")}
	svc := mailer.NewDeliveryService(sender, nil, "noreply@x.io", time.Second)

	res := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io"}, false)
	assert.Equal(t, model.EmailFailed, res.Status)
	assert.Contains(t, res.Error, "535 authentication failed")
	assert.Error(t, svc.Ping(context.Background()))
}

func TestDeliverTimesOut(t *testing.T) {
	svc := mailer.NewDeliveryService(slowSender{}, nil, "noreply@x.io", 20*time.Millisecond)

	res := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io"}, false)
	assert.Equal(t, model.EmailFailed, res.Status)
	assert.Equal(t, "send timed out", res.Error)
}

func TestDeliverRateLimitWaitIsBounded(t *testing.T) {
	sender := &fakeSender{}
	limiter := rate.NewMemoryLimiter(1, time.Hour)
	svc := mailer.NewDeliveryService(sender, limiter, "noreply@x.io", 30*time.Millisecond)

	first := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io"}, false)
	second := svc.Deliver(context.Background(), mailer.Message{To: "b@x.io"}, false)

	assert.Equal(t, model.EmailSent, first.Status)
	assert.Equal(t, model.EmailFailed, second.Status)
	assert.Equal(t, "rate limit wait timed out", second.Error)
	assert.Len(t, sender.sent, 1)
}

func TestDeliverFailsWhenLimiterStoreIsDown(t *testing.T) {
	client := rdb.NewClient(&rdb.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	sender := &fakeSender{}
	svc := mailer.NewDeliveryService(sender, rate.NewRedisLimiter(client, "mailer:relay:", 10, time.Minute), "noreply@x.io", 2*time.Second)

	res := svc.Deliver(context.Background(), mailer.Message{To: "a@x.io"}, false)
	assert.Equal(t, model.EmailFailed, res.Status)
	assert.Contains(t, res.Error, "rate limit wait:")
	assert.Empty(t, sender.sent)
}

func TestDeliverTrimsRecipient(t *testing.T) {
	sender := &fakeSender{}
	svc := mailer.NewDeliveryService(sender, nil, "noreply@x.io", time.Second)

	res := svc.Deliver(context.Background(), mailer.Message{To: "  ann@x.io \n", Subject: "Hi"}, false)
	require.Equal(t, model.EmailSent, res.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ann@x.io", sender.sent[0].To)
}

func TestDeliveryPingWithoutPinger(t *testing.T) {
	svc := mailer.NewDeliveryService(slowSender{}, nil, "", time.Second)
	assert.Error(t, svc.Ping(context.Background()))
}
