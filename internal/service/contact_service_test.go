package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

func TestContactServiceValidatesEmail(t *testing.T) {
	h := newHarness(t)
	svc := &service.ContactService{ContactRepo: h.contacts}

	err := svc.Create(h.ctx, &model.Contact{Email: "not-an-email"})
	assert.True(t, appErrors.IsValidation(err))

	c := &model.Contact{Email: "  Ann@X.io ", FirstName: " Ann ", Active: true}
	require.NoError(t, svc.Create(h.ctx, c))
	assert.Equal(t, "ann@x.io", c.Email)
	assert.Equal(t, "Ann", c.FirstName)

	c.LastName = "Lee"
	require.NoError(t, svc.Update(h.ctx, c))
	got, err := svc.Get(h.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lee", got.LastName)

	assert.True(t, appErrors.IsNotFound(svc.Update(h.ctx, &model.Contact{ID: "ghost", Email: "g@x.io"})))
}

func TestContactBulkCreate(t *testing.T) {
	h := newHarness(t)
	svc := &service.ContactService{ContactRepo: h.contacts}
	require.NoError(t, svc.Create(h.ctx, &model.Contact{Email: "dup@x.io", Active: true}))

	res, err := svc.BulkCreate(h.ctx, []model.Contact{
		{Email: "a@x.io", Active: true},
		{Email: "dup@x.io", Active: true},
		{Email: "broken", Active: true},
		{Email: "b@x.io", Active: true, CustomFields: map[string]string{"company": "Acme"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 3")

	list, total, err := svc.List(h.ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, list, 3)
}

func TestTemplateServiceDerivesPlaceholders(t *testing.T) {
	h := newHarness(t)
	svc := &service.TemplateService{TemplateRepo: h.templates}

	assert.True(t, appErrors.IsValidation(svc.Save(h.ctx, &model.Template{Name: "x", Subject: "s"})))

	tpl := &model.Template{Name: "Promo", Subject: "Hi ${first_name}", Content: "$company has $$5 off", Placeholders: []string{"stale"}}
	require.NoError(t, svc.Save(h.ctx, tpl))
	assert.Equal(t, []string{"company", "first_name"}, tpl.Placeholders)

	tpl.Content = "Nothing to see"
	require.NoError(t, svc.Update(h.ctx, tpl))
	got, err := svc.Get(h.ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name"}, got.Placeholders)

	preview, err := svc.Preview(h.ctx, tpl.ID, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Hi ${first_name}", preview.Subject)
	assert.Equal(t, []string{"first_name"}, preview.Missing)
}

func TestDashboardStats(t *testing.T) {
	h := newHarness(t)
	tpl := h.template(t, false)
	c := h.campaign(t, tpl.ID, h.contact(t, "ann@x.io", "Ann"), h.contact(t, "bob@x.io", "Bob"))
	_, err := h.svc.SendCampaign(h.ctx, c.ID, true)
	require.NoError(t, err)
	h.runQueued(t)

	dash := &service.DashboardService{ContactRepo: h.contacts, TemplateRepo: h.templates, CampaignRepo: h.campaigns, LogRepo: h.logs}
	stats, err := dash.Stats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalContacts)
	assert.Equal(t, 1, stats.TotalTemplates)
	assert.Equal(t, 1, stats.TotalCampaigns)
	assert.Zero(t, stats.ActiveCampaigns)
	assert.Equal(t, 2, stats.TotalEmailsSent)
	assert.Equal(t, 2, stats.EmailsSentToday)
	assert.Len(t, stats.RecentCampaigns, 1)
	assert.Len(t, stats.RecentEmails, 2)

	logs := &service.EmailLogService{LogRepo: h.logs}
	got, err := logs.List(h.ctx, model.EmailLogFilter{CampaignID: c.ID}, 7)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = logs.List(h.ctx, model.EmailLogFilter{Status: "opened"}, 0)
	assert.True(t, appErrors.IsValidation(err))
}
