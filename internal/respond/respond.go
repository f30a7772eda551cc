// Package respond writes JSON responses for the HTTP handlers.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as {"error": ...}. Internal errors are logged and
// reported without detail.
func Error(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	}
	JSON(w, status, map[string]string{"error": apperr.Public(err)})
}
