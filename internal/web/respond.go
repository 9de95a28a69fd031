package web

import (
	"encoding/json"
	"net/http"

	"github.com/koffiyao/cartes/internal/logging"
)

// respondJSON writes v as a JSON response body.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("write response", "error", err)
	}
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
}

// respondError writes a JSON error with the given status.
func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "status", status, "error", msg)
		// Internal details stay in the logs.
		msg = "internal server error"
	}
	respondJSON(w, r, status, errorBody{Error: msg})
}
