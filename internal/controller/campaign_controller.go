// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-mailer/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

type campaignRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description"`
	TemplateID  string   `json:"template_id" validate:"required"`
	FromEmail   string   `json:"from_email" validate:"omitempty,email"`
	ContactIDs  []string `json:"contact_ids"`
	ScheduledAt *string  `json:"scheduled_at"`
}

func (b campaignRequest) input() service.CampaignInput {
	return service.CampaignInput{
		Name:        b.Name,
		Description: b.Description,
		TemplateID:  b.TemplateID,
		FromEmail:   b.FromEmail,
		ContactIDs:  b.ContactIDs,
		ScheduledAt: b.ScheduledAt,
	}
}

// Mount registers the campaign routes on r.
func (c *CampaignController) Mount(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.CreateCampaign)
		r.Get("/", c.ListCampaigns)
		r.Get("/{id}", c.GetCampaignDetails)
		r.Put("/{id}", c.UpdateCampaign)
		r.Delete("/{id}", c.DeleteCampaign)
		r.Post("/{id}/send", c.SendCampaign)
		r.Post("/{id}/pause", c.PauseCampaign)
		r.Post("/{id}/resume", c.ResumeCampaign)
		r.Post("/{id}/personalized-preview", c.PersonalizedPreview)
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID string `json:"contact_id" validate:"required"`
		UseAI     *bool  `json:"use_ai"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}

	preview, err := c.CampaignService.RenderPreview(r.Context(), chi.URLParam(r, "id"), body.ContactID, body.UseAI)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, preview)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body campaignRequest
	if !decodeBody(w, r, &body, false) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body.input())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var body campaignRequest
	if !decodeBody(w, r, &body, false) {
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), body.input())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, r.URL.Query().Get("status"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination, // page, page_size, total_count, total_pages
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendCampaign queues the dispatch and answers 202 right away. Progress is
// visible through GET /campaigns/{id} and GET /emails.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun bool `json:"dry_run"`
	}
	if !decodeBody(w, r, &body, true) {
		return
	}

	ack, err := c.CampaignService.SendCampaign(r.Context(), chi.URLParam(r, "id"), body.DryRun)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, ack)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	ack, err := c.CampaignService.PauseCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, ack)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	ack, err := c.CampaignService.ResumeCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, ack)
}
