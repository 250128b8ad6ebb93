package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration
}

// SMTPSender opens one authenticated connection per message.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) dialer() *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.Timeout = s.cfg.Timeout
	d.RetryFailure = false
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	switch {
	case s.cfg.Port == 465:
		d.SSL = true
	case s.cfg.UseTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		d.StartTLSPolicy = mail.NoStartTLS
	}
	return d
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.HTML {
		m.SetBody("text/html", msg.Body)
	} else {
		m.SetBody("text/plain", msg.Body)
	}

	return s.run(ctx, func() error { return s.dialer().DialAndSend(m) })
}

// Ping dials and authenticates without sending.
func (s *SMTPSender) Ping(ctx context.Context) error {
	return s.run(ctx, func() error {
		c, err := s.dialer().Dial()
		if err != nil {
			return err
		}
		return c.Close()
	})
}

// run executes fn but returns early when ctx ends. The dialer's own timeout
// bounds the abandoned call.
func (s *SMTPSender) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Sender = (*SMTPSender)(nil)
