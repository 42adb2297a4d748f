package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/diskutil"
	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.Servers().List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) createServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		IsLocal  bool   `json:"is_local"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || (!req.IsLocal && !domain.ValidPort(req.Port)) {
		writeError(w, perr.BadInput("name is required and port must be valid for a remote server"))
		return
	}

	now := time.Now().UTC()
	srv := &domain.Server{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Host:      req.Host,
		Port:      req.Port,
		Username:  req.Username,
		IsLocal:   req.IsLocal,
		Status:    domain.ServerUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Servers().Create(srv); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, srv)
}

func (s *Server) getServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.store.Servers().FindByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// getLocalDiskUsage reports disk usage for ployer's own data directory on
// this host — the one "server" the control plane always runs on.
func (s *Server) getLocalDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := diskutil.GetDiskUsage(s.dataDir)
	if err != nil {
		writeError(w, perr.Wrap(perr.KindTransient, "read disk usage", err))
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Servers().Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
