package handler

import (
	"net/http"

	"github.com/unclebandit/campaign-mailer/internal/controller"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

type DashboardHandler struct {
	Service *service.DashboardService
}

func (h *DashboardHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, stats)
}
