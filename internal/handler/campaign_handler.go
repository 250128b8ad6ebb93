// internal/handler/campaign_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-mailer/internal/controller"
	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

// CampaignHandler serves per-campaign delivery statistics.
type CampaignHandler struct {
	Service *service.CampaignService
}

// NewCampaignHandler creates a new CampaignHandler with the given service
func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// GetCampaignStatsHandler returns the email log breakdown of one campaign.
func (h *CampaignHandler) GetCampaignStatsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := logger.Named("handler")

	log.Debug("📥 Stats requested", logger.CampaignID(id))

	stats, err := h.Service.CampaignStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}

	log.Debug("✅ Returning campaign stats",
		logger.CampaignID(id),
		logger.Int("total", stats.Total),
		logger.Int("sent", stats.Sent))

	controller.WriteJSON(w, http.StatusOK, stats)
}
