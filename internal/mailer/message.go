// Package mailer hands personalized messages to the SMTP relay.
package mailer

import (
	"context"

	"github.com/unclebandit/campaign-mailer/internal/model"
)

// Message is one outgoing email.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
	HTML    bool
}

// Result is the outcome of one delivery attempt. Error is empty when
// Status is sent.
type Result struct {
	Status model.EmailStatus
	Error  string
}

// Sender submits a message to a relay.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
