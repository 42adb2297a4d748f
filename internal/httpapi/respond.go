package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nusendra/ployer/internal/perr"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, perr.HTTPStatus(err), map[string]string{"error": err.Error()})
}
