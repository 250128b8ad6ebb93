// internal/model/email_log.go
package model

import "time"

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
	EmailBounced EmailStatus = "bounced"
)

func (s EmailStatus) Terminal() bool {
	return s != EmailPending && s != ""
}

// EmailLog is the audit record of one delivery attempt for a
// (campaign, contact) pair. Rows are immutable once non-pending.
type EmailLog struct {
	ID           string      `db:"id" json:"id"`
	CampaignID   string      `db:"campaign_id" json:"campaign_id"`
	ContactID    string      `db:"contact_id" json:"contact_id"`
	TemplateID   string      `db:"template_id" json:"template_id"`
	Recipient    string      `db:"recipient" json:"recipient"`
	Subject      string      `db:"subject" json:"subject"`
	Body         string      `db:"body" json:"body"`
	Status       EmailStatus `db:"status" json:"status"` // pending, sent, failed, bounced
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	AIFallback   bool        `db:"ai_fallback" json:"ai_fallback"`
	DryRun       bool        `db:"dry_run" json:"dry_run"`
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// EmailLogFilter narrows email log listings. Zero values mean no filter.
type EmailLogFilter struct {
	CampaignID string
	ContactID  string
	Status     EmailStatus
	Since      *time.Time
	Offset     int
	Limit      int
}
