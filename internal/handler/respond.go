package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/middleware"
)

// envelope is a JSON response body. writeOK adds "success": true.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, status, body)
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

// failure is the body writeError sends: the caller-facing message plus the
// error kind as a machine-readable code.
func failure(err error) envelope {
	return envelope{
		"success": false,
		"error":   apperr.Message(err),
		"code":    apperr.KindOf(err).String(),
	}
}

// writeError maps err to a status through its apperr kind. Unclassified
// errors are logged and reported as "internal error".
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, failure(err))
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON")
	}
	return nil
}

// requireBody is decodeBody for routes where an empty body is a mistake.
func requireBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return apperr.Validation("request body is required")
	}
	return decodeBody(r, v)
}
