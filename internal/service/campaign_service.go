// internal/service/campaign_service.go
package service

import (
	"context"
	"strings"
	"time"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	LogRepo      repository.EmailLogRepositoryInterface
	Personalizer Personalizer
	Dispatcher   *Dispatcher
}

// CampaignInput carries the editable fields of a campaign.
type CampaignInput struct {
	Name        string
	Description string
	TemplateID  string
	FromEmail   string
	ContactIDs  []string
	ScheduledAt *string
}

type CampaignDetails struct {
	*model.Campaign
	Stats *model.CampaignStats `json:"stats"`
}

// PreviewResult is a personalized message rendered without sending it.
type PreviewResult struct {
	CampaignID string   `json:"campaign_id"`
	ContactID  string   `json:"contact_id"`
	Recipient  string   `json:"recipient"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	AIUsed     bool     `json:"ai_used"`
	Fallback   bool     `json:"ai_fallback"`
	Missing    []string `json:"missing_placeholders"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	if err := s.validateInput(ctx, in); err != nil {
		return nil, err
	}
	if len(in.ContactIDs) == 0 {
		return nil, appErrors.NewValidation("contact_ids", "at least one contact is required")
	}
	seen := make(map[string]bool, len(in.ContactIDs))
	for _, id := range in.ContactIDs {
		if seen[id] {
			return nil, appErrors.NewValidation("contact_ids", "duplicate contact "+id)
		}
		seen[id] = true
	}
	found, err := s.ContactRepo.ExistingIDs(ctx, in.ContactIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range in.ContactIDs {
		if !found[id] {
			return nil, appErrors.NewContactNotFound(id)
		}
	}

	c := &model.Campaign{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		TemplateID:  in.TemplateID,
		FromEmail:   in.FromEmail,
		ContactIDs:  in.ContactIDs,
		Status:      model.CampaignDraft,
	}
	if c.ScheduledAt, err = parseSchedule(in.ScheduledAt); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCampaign edits a draft campaign. Membership is fixed at creation.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, appErrors.NewConflict("campaign", id, "cannot update campaign with status "+string(c.Status))
	}
	if in.ContactIDs != nil {
		return nil, appErrors.NewValidation("contact_ids", "campaign membership cannot be changed after creation")
	}
	if err := s.validateInput(ctx, in); err != nil {
		return nil, err
	}

	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.TemplateID = in.TemplateID
	c.FromEmail = in.FromEmail
	if c.ScheduledAt, err = parseSchedule(in.ScheduledAt); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) validateInput(ctx context.Context, in CampaignInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return appErrors.NewValidation("name", "name is required")
	}
	if in.TemplateID == "" {
		return appErrors.NewValidation("template_id", "template_id is required")
	}
	_, err := s.TemplateRepo.GetByID(ctx, in.TemplateID)
	return err
}

func parseSchedule(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, appErrors.NewValidation("scheduled_at", "must be an RFC3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if status != "" && !model.CampaignStatus(status).Valid() {
		return nil, nil, appErrors.NewValidation("status", "unknown campaign status "+status)
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetails fetches a campaign with its email log breakdown
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id string) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.LogRepo.StatsByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

// CampaignStats returns the log breakdown for an existing campaign.
func (s *CampaignService) CampaignStats(ctx context.Context, id string) (*model.CampaignStats, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.LogRepo.StatsByCampaign(ctx, id)
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	return s.CampaignRepo.Delete(ctx, id)
}

// RenderPreview personalizes the campaign's template for one contact without
// sending. useAI overrides the template's AI flag when set.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, contactID string, useAI *bool) (*PreviewResult, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.TemplateRepo.GetByID(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	contact, err := s.ContactRepo.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}

	ai := tpl.UseLLM
	if useAI != nil {
		ai = *useAI
	}
	p, err := s.Personalizer.Personalize(ctx, tpl, ContactVars(*contact), ai)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		CampaignID: c.ID,
		ContactID:  contact.ID,
		Recipient:  contact.Email,
		Subject:    p.Subject,
		Body:       p.Body,
		AIUsed:     p.AIUsed,
		Fallback:   p.Fallback,
		Missing:    p.Missing,
	}, nil
}

func (s *CampaignService) SendCampaign(ctx context.Context, id string, dryRun bool) (*Ack, error) {
	if s.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	return s.Dispatcher.Start(ctx, id, dryRun)
}

func (s *CampaignService) PauseCampaign(ctx context.Context, id string) (*Ack, error) {
	if s.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	return s.Dispatcher.Pause(ctx, id)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) (*Ack, error) {
	if s.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	return s.Dispatcher.Resume(ctx, id)
}
