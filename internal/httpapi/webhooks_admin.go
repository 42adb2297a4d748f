package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// createWebhook configures the at-most-one push-event receiver for an
// application, generating a fresh shared secret the caller must hand to
// GitHub/GitLab when registering the webhook URL — mirroring the teacher's
// handleWebhookSetup (internal/api/api.go), which generates a random
// 32-byte hex secret the same way.
func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "id")

	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	provider := domain.WebhookProvider(req.Provider)
	if provider != domain.ProviderGitHub && provider != domain.ProviderGitLab {
		writeError(w, perr.BadInput("provider must be github or gitlab"))
		return
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		writeError(w, perr.Wrap(perr.KindCryptoFailure, "generate webhook secret", err))
		return
	}

	now := time.Now().UTC()
	hook := &domain.Webhook{
		ID:            uuid.NewString(),
		ApplicationID: appID,
		Provider:      provider,
		Secret:        hex.EncodeToString(secretBytes),
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Webhooks().Create(hook); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":           hook.ID,
		"secret":       hook.Secret,
		"webhook_url":  "/webhooks/" + req.Provider + "?app_id=" + appID,
	})
}
