package service

import (
	"context"
	"time"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
)

const dashboardRecent = 5

type DashboardService struct {
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	LogRepo      repository.EmailLogRepositoryInterface
}

// Stats collects the overview numbers. "Today" starts at midnight UTC.
func (s *DashboardService) Stats(ctx context.Context) (*model.DashboardStats, error) {
	out := &model.DashboardStats{}
	var err error

	if out.TotalContacts, err = s.ContactRepo.Count(ctx); err != nil {
		return nil, err
	}
	if out.TotalTemplates, err = s.TemplateRepo.Count(ctx); err != nil {
		return nil, err
	}
	if out.TotalCampaigns, err = s.CampaignRepo.Count(ctx); err != nil {
		return nil, err
	}
	if out.ActiveCampaigns, err = s.CampaignRepo.CountByStatus(ctx, model.CampaignInProgress); err != nil {
		return nil, err
	}
	if out.TotalEmailsSent, err = s.LogRepo.CountByStatus(ctx, model.EmailSent); err != nil {
		return nil, err
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	if out.EmailsSentToday, err = s.LogRepo.CountByStatusSince(ctx, model.EmailSent, midnight); err != nil {
		return nil, err
	}

	recent, err := s.CampaignRepo.Recent(ctx, dashboardRecent)
	if err != nil {
		return nil, err
	}
	out.RecentCampaigns = make([]model.Campaign, len(recent))
	for i, c := range recent {
		out.RecentCampaigns[i] = *c
	}
	if out.RecentEmails, err = s.LogRepo.Recent(ctx, dashboardRecent); err != nil {
		return nil, err
	}
	return out, nil
}

// EmailLogService serves the email log listing endpoints.
type EmailLogService struct {
	LogRepo repository.EmailLogRepositoryInterface
}

// List applies filter; days > 0 limits results to the last days days.
func (s *EmailLogService) List(ctx context.Context, filter model.EmailLogFilter, days int) ([]model.EmailLog, error) {
	if filter.Status != "" {
		switch filter.Status {
		case model.EmailPending, model.EmailSent, model.EmailFailed, model.EmailBounced:
		default:
			return nil, appErrors.NewValidation("status", "unknown email status "+string(filter.Status))
		}
	}
	if days > 0 {
		since := time.Now().UTC().AddDate(0, 0, -days)
		filter.Since = &since
	}
	filter.Offset, filter.Limit = clampWindow(filter.Offset, filter.Limit)
	return s.LogRepo.List(ctx, filter)
}

func (s *EmailLogService) Get(ctx context.Context, id string) (*model.EmailLog, error) {
	return s.LogRepo.GetByID(ctx, id)
}
