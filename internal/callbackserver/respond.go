package callbackserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/greenfelt/casino/internal/domain"
)

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondRaw writes pre-serialized bytes. Used for the replay path so
// duplicates return the first success body verbatim.
func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// errorBody is the wire shape for every failed request.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// respondError maps domain.AppError to its status and code; anything
// else becomes a logged 500 INTERNAL_ERROR.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if appErr, ok := err.(*domain.AppError); ok {
		if appErr.Status >= 500 {
			logger.Error("request failed",
				"code", appErr.Code, "error", appErr.Error(),
				"path", r.URL.Path, "request_id", requestID(r.Context()))
		}
		respondJSON(w, appErr.Status, errorBody{Error: appErr.Message, Code: appErr.Code})
		return
	}

	logger.Error("unhandled error",
		"error", err, "path", r.URL.Path, "request_id", requestID(r.Context()))
	respondJSON(w, http.StatusInternalServerError, errorBody{
		Error: "internal server error",
		Code:  "INTERNAL_ERROR",
	})
}
