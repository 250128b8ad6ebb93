// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignInProgress CampaignStatus = "in_progress"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
	CampaignPaused     CampaignStatus = "paused"
)

// Startable reports whether a new dispatch may begin from this status.
func (s CampaignStatus) Startable() bool {
	return s == CampaignDraft || s == CampaignPaused
}

func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignInProgress, CampaignCompleted, CampaignFailed, CampaignPaused:
		return true
	}
	return false
}

type Campaign struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description,omitempty"`
	TemplateID     string         `db:"template_id" json:"template_id"`
	FromEmail      string         `db:"from_email" json:"from_email,omitempty"`
	ContactIDs     []string       `db:"-" json:"contact_ids"`
	Status         CampaignStatus `db:"status" json:"status"`
	TotalCount     int            `db:"total_count" json:"total_emails"`
	SentCount      int            `db:"sent_count" json:"sent_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	DryRun         bool           `db:"dry_run" json:"dry_run"`
	PauseRequested bool           `db:"pause_requested" json:"pause_requested"`
	ScheduledAt    *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt      *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
