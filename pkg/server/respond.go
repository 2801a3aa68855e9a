package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/conversation"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// writeJSON renders a response body, stamping the timestamp every
// endpoint carries.
func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeValidationError is the 400 shape for malformed input.
func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "validation_error",
		"message": message,
	})
}

// writeError maps a domain error onto the status-code table: 404 for
// unknown resources, 408 for deadline expiry, 503 when a required
// collaborator is unreachable, 500 otherwise. 5xx bodies expose the
// error kind as a non-sensitive type tag.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrThreadNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "not_found",
			"message": err.Error(),
		})
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusRequestTimeout, map[string]any{
			"error":   "deadline_exceeded",
			"message": "the operation did not complete within its deadline",
		})
		return
	}

	kind := ragerror.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case ragerror.KindAPI:
		status = http.StatusBadRequest
	case ragerror.KindEmbedding, ragerror.KindLLM:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusBadRequest {
		writeJSON(w, status, map[string]any{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	slog.Error("Request failed", "kind", kind, "error", err)
	writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": err.Error(),
		"type":    string(kind),
	})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}
