// ABOUTME: HTTP handler receiving gateway webhook notifications
// ABOUTME: Answers fast with {"status":"ok"}; parse failures become 400 responses

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/2389/switchboard/internal/webhook"
)

// maxWebhookBytes bounds a webhook body. Media messages carry base64
// thumbnails, so this is generous.
const maxWebhookBytes = 16 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendJSONError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		s.sendJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if session := r.PathValue("session"); session != "" {
		body = webhook.WithSession(body, session)
	}

	if _, err := s.normalizer.Handle(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, webhook.ErrMissingSession):
			s.sendJSONError(w, http.StatusBadRequest, "missing session")
		default:
			s.sendJSONError(w, http.StatusBadRequest, "malformed payload")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON writes v as a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
