package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/deploy"
	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

func (s *Server) listDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.store.Domains().ListByApplication(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

// createDomain registers a hostname for an application and, if the
// application already has a running container, immediately wires the
// route. A fresh application with no deployment yet still gets the domain
// row; the next successful deploy registers the route itself (executor.go's
// swapContainer does this for every domain on every deploy).
func (s *Server) createDomain(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "id")

	var req struct {
		DomainName string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DomainName == "" {
		writeError(w, perr.BadInput("domain is required"))
		return
	}

	existing, err := s.store.Domains().ListByApplication(appID)
	if err != nil {
		writeError(w, err)
		return
	}

	d := &domain.Domain{
		ID:            uuid.NewString(),
		ApplicationID: appID,
		DomainName:    req.DomainName,
		IsPrimary:     len(existing) == 0,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Domains().Create(d); err != nil {
		writeError(w, err)
		return
	}

	app, err := s.store.Applications().FindByID(appID)
	if err == nil && app.Status == domain.AppRunning {
		upstream := fmt.Sprintf("localhost:%d", deploy.AssignHostPort(appID))
		if rerr := s.proxyMgr.AddRoute(r.Context(), d, upstream); rerr != nil {
			s.log.Printf("register route for %s: %v", d.DomainName, rerr)
		}
	}

	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) setPrimaryDomain(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Domains().SetPrimary(chi.URLParam(r, "id"), chi.URLParam(r, "domainId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDomain(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Domains().FindByID(chi.URLParam(r, "domainId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.proxyMgr.RemoveRoute(r.Context(), d); err != nil {
		s.log.Printf("remove route for %s: %v", d.DomainName, err)
	}
	if err := s.store.Domains().Delete(d.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
