package handler

import (
	"context"
	"net/http"
	"time"
)

const dependencyPingTimeout = 2 * time.Second

// DependencyCheck pings one backing service for readiness.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks []DependencyCheck
}

func NewHealthHandler(checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type readinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /ready
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{Status: "ok", Dependencies: make(map[string]string, len(h.checks))}

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), dependencyPingTimeout)
		err := check.Ping(ctx)
		cancel()

		if err != nil {
			resp.Dependencies[check.Name] = "down"
			resp.Status = "error"
			continue
		}
		resp.Dependencies[check.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
