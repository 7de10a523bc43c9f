// Package httpapi exposes Core over HTTP, mirroring the router-embedded-
// in-a-service-struct shape of internal/marble.Service: a Service type
// owns a *mux.Router, registers routes against Core in registerRoutes,
// and is itself a core/system.Service so Core's Manager starts and stops
// it alongside the background reconciler.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aegix-network/aegix/internal/errors"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorResponse is the JSON shape every non-2xx response takes.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps err to a JSON error body, using CoreError's declared
// HTTP status and short code when available and falling back to 500.
func writeError(w http.ResponseWriter, err error) {
	if ce, ok := errors.As(err); ok {
		writeJSON(w, ce.HTTPStatus(), errorResponse{Code: ce.ShortCode, Message: ce.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: err.Error()})
}

// decodeJSON decodes the request body into v, reporting a 400-mapped
// CoreError on malformed JSON.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Invalid("malformed request body: %v", err)
	}
	return nil
}
