package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.Applications().List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string  `json:"name"`
		ServerID      string  `json:"server_id"`
		GitURL        *string `json:"git_url"`
		GitBranch     string  `json:"git_branch"`
		BuildStrategy string  `json:"build_strategy"`
		AutoDeploy    bool    `json:"auto_deploy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !domain.ValidAppName(req.Name) {
		writeError(w, perr.BadInput("name must be a valid DNS label"))
		return
	}
	if req.GitBranch == "" {
		req.GitBranch = "main"
	}
	strategy := domain.BuildStrategy(req.BuildStrategy)
	if strategy == "" {
		strategy = domain.BuildDockerfile
	}

	now := time.Now().UTC()
	app := &domain.Application{
		ID:            uuid.NewString(),
		Name:          req.Name,
		ServerID:      req.ServerID,
		GitURL:        req.GitURL,
		GitBranch:     req.GitBranch,
		BuildStrategy: strategy,
		Status:        domain.AppIdle,
		AutoDeploy:    req.AutoDeploy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Applications().Create(app); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.Applications().FindByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) deleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Applications().Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) triggerDeploy(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.Applications().FindByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := s.executor.Deploy(r.Context(), app)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := s.store.Deployments().ListByApplication(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployments)
}

func (s *Server) cancelDeployment(w http.ResponseWriter, r *http.Request) {
	err := s.executor.Cancel(chi.URLParam(r, "id"), chi.URLParam(r, "deploymentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setEnvVar(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "id")
	key := chi.URLParam(r, "key")
	if !domain.ValidEnvKey(key) {
		writeError(w, perr.BadInput("invalid environment variable key"))
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sealed, err := s.envelope.Seal(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.EnvVars().UpdateValue(appID, key, sealed); err != nil {
		if perr.KindOf(err) != perr.KindNotFound {
			writeError(w, err)
			return
		}
		ev := &domain.EnvironmentVariable{
			ID:            uuid.NewString(),
			ApplicationID: appID,
			Key:           key,
			ValueSealed:   sealed,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.store.EnvVars().Create(ev); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEnvVar(w http.ResponseWriter, r *http.Request) {
	if err := s.store.EnvVars().Delete(chi.URLParam(r, "id"), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
