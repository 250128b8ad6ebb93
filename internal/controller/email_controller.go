package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

// EmailController exposes the email log.
type EmailController struct {
	EmailLogService *service.EmailLogService
}

func (c *EmailController) Mount(r chi.Router) {
	r.Get("/emails", c.List)
	r.Get("/emails/{id}", c.Get)
}

// List accepts campaign_id, contact_id, status, days, skip and limit.
func (c *EmailController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EmailLogFilter{
		CampaignID: q.Get("campaign_id"),
		ContactID:  q.Get("contact_id"),
		Status:     model.EmailStatus(q.Get("status")),
	}

	var err error
	if filter.Offset, err = queryInt(r, "skip", 0); err != nil {
		WriteError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		WriteError(w, r, err)
		return
	}
	days, err := queryInt(r, "days", 0)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	logs, err := c.EmailLogService.List(r.Context(), filter, days)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, logs)
}

func (c *EmailController) Get(w http.ResponseWriter, r *http.Request) {
	log, err := c.EmailLogService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, log)
}
