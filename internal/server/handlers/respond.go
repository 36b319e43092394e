package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/namelens/chatgate/internal/errors"
)

// Responses carry per-request budget state or completions, so none of them
// may be cached.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Cache-Control", "no-store")
	apperrors.RespondWithError(w, r, err)
}
