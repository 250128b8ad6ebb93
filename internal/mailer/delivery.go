package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/metrics"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/rate"
)

const (
	ErrInvalidRecipient = "invalid recipient address"
	rateKey             = "smtp"
)

// Pinger is implemented by senders that can check relay connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DeliveryService validates, rate limits and submits messages. It never
// returns an error: every problem becomes a failed Result.
type DeliveryService struct {
	Sender  Sender
	Limiter rate.Limiter
	// From is used when a message has no sender of its own.
	From    string
	Timeout time.Duration

	validate *validator.Validate
	log      *zap.Logger
}

func NewDeliveryService(sender Sender, limiter rate.Limiter, from string, timeout time.Duration) *DeliveryService {
	return &DeliveryService{
		Sender:   sender,
		Limiter:  limiter,
		From:     from,
		Timeout:  timeout,
		validate: validator.New(),
		log:      logger.Named("delivery"),
	}
}

// ValidAddress reports whether addr passes the email rule.
func (s *DeliveryService) ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr != "" && s.validate.Var(addr, "required,email") == nil
}

func (s *DeliveryService) Deliver(ctx context.Context, msg Message, dryRun bool) Result {
	msg.To = strings.TrimSpace(msg.To)
	if !s.ValidAddress(msg.To) {
		return Result{Status: model.EmailFailed, Error: ErrInvalidRecipient}
	}
	if msg.From == "" {
		msg.From = s.From
	}

	if dryRun {
		s.log.Info("[dry-run] email not sent",
			logger.Email(msg.To),
			zap.String("subject", msg.Subject),
			zap.Int("body_len", len(msg.Body)))
		return Result{Status: model.EmailSent}
	}

	if s.Sender == nil {
		return Result{Status: model.EmailFailed, Error: "no mail relay configured"}
	}

	start := time.Now()
	sendCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if err := rate.Wait(sendCtx, s.Limiter, rateKey); err != nil {
		metrics.ObserveDelivery(string(model.EmailFailed), time.Since(start))
		return Result{Status: model.EmailFailed, Error: describe("rate limit wait", err)}
	}
	if err := s.Sender.Send(sendCtx, msg); err != nil {
		metrics.ObserveDelivery(string(model.EmailFailed), time.Since(start))
		s.log.Warn("email delivery failed", logger.Email(msg.To), logger.Err(err))
		return Result{Status: model.EmailFailed, Error: describe("send", err)}
	}

	metrics.ObserveDelivery(string(model.EmailSent), time.Since(start))
	s.log.Debug("email sent", logger.Email(msg.To), logger.Duration(time.Since(start)))
	return Result{Status: model.EmailSent}
}

// Ping checks the relay when the sender supports it.
func (s *DeliveryService) Ping(ctx context.Context) error {
	p, ok := s.Sender.(Pinger)
	if !ok {
		return errors.New("mail relay does not support connection checks")
	}
	return p.Ping(ctx)
}

func describe(stage string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out", stage)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s cancelled", stage)
	}
	return fmt.Sprintf("%s: %v", stage, err)
}
