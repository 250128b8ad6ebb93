package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/unclebandit/campaign-mailer/internal/controller"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

// Check probes one dependency.
type Check struct {
	Name string
	// Critical failures make the service unavailable; others only degrade it.
	Critical bool
	Probe    func(ctx context.Context) error
}

type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthHandler runs all checks concurrently under Timeout.
type HealthHandler struct {
	Checks  []Check
	Timeout time.Duration
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Components: make(map[string]ComponentStatus, len(h.Checks))}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range h.Checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			err := c.Probe(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				resp.Components[c.Name] = ComponentStatus{Status: "up"}
				return
			}
			resp.Components[c.Name] = ComponentStatus{Status: "down", Error: err.Error()}
			switch {
			case c.Critical:
				resp.Status = "unavailable"
			case resp.Status == "healthy":
				resp.Status = "degraded"
			}
		}(c)
	}
	wg.Wait()

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
		logger.Named("handler").Warn("⚠️ Health check failed", logger.Any("components", resp.Components))
	}
	controller.WriteJSON(w, status, resp)
}
