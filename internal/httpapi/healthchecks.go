package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

func (s *Server) getHealthCheck(w http.ResponseWriter, r *http.Request) {
	hc, err := s.store.HealthChecks().FindByApplication(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hc)
}

func (s *Server) upsertHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path               string `json:"path"`
		IntervalSeconds    int    `json:"interval_seconds"`
		TimeoutSeconds     int    `json:"timeout_seconds"`
		HealthyThreshold   int    `json:"healthy_threshold"`
		UnhealthyThreshold int    `json:"unhealthy_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Path == "" {
		writeError(w, perr.BadInput("path is required"))
		return
	}
	if req.IntervalSeconds <= 0 {
		req.IntervalSeconds = 30
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 5
	}
	if req.HealthyThreshold <= 0 {
		req.HealthyThreshold = 1
	}
	if req.UnhealthyThreshold <= 0 {
		req.UnhealthyThreshold = 3
	}

	hc := &domain.HealthCheck{
		ApplicationID:      chi.URLParam(r, "id"),
		Path:               req.Path,
		IntervalSeconds:    req.IntervalSeconds,
		TimeoutSeconds:     req.TimeoutSeconds,
		HealthyThreshold:   req.HealthyThreshold,
		UnhealthyThreshold: req.UnhealthyThreshold,
	}
	if err := s.store.HealthChecks().Upsert(hc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hc)
}
