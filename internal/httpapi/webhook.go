package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nusendra/ployer/internal/domain"
)

// handleWebhook receives a push-event delivery for the application named by
// the app_id query parameter, per SPEC_FULL.md §5.6's two-provider,
// query-param shape. The provider (github|gitlab) is the path segment;
// its own signature/token header is what actually authenticates the call.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := domain.WebhookProvider(chi.URLParam(r, "provider"))
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "app_id query parameter is required"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	header := r.Header.Get("X-Hub-Signature-256")
	if provider == domain.ProviderGitLab {
		header = r.Header.Get("X-Gitlab-Token")
	}

	delivery, err := s.ingress.Handle(r.Context(), appID, header, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, delivery)
}
