// ABOUTME: Authenticated chat proxy relaying viewer requests to the messaging gateway
// ABOUTME: Looks up the active session's token, calls gwclient and relays status and body

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/store"
)

const maxProxyBodyBytes = 32 << 20

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type sendMediaRequest struct {
	Phone    string `json:"phone"`
	Type     string `json:"type"` // image, file or audio
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	Base64   string `json:"base64"`
}

type downloadMediaRequest struct {
	MessageID string `json:"message_id"`
}

// sessionAuth returns gateway credentials for the session named in the path.
// It writes the error response itself and returns false on failure.
func (s *Server) sessionAuth(w http.ResponseWriter, r *http.Request) (gwclient.Auth, bool) {
	name := r.PathValue("session")
	sess, err := s.store.GetActiveSession(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "session not found")
			return gwclient.Auth{}, false
		}
		s.logger.Error("failed to load session", "session", name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return gwclient.Auth{}, false
	}
	return gwclient.Auth{Session: sess.Name, Token: sess.Token}, true
}

// relay writes a gateway answer back to the viewer. Transport failures become
// 502; gateway status codes are passed through unchanged.
func (s *Server) relay(w http.ResponseWriter, op string, resp *gwclient.Response, err error) {
	if resp == nil {
		s.logger.Warn("gateway call failed", "op", op, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, "gateway unavailable")
		return
	}
	if err != nil {
		s.logger.Debug("gateway returned error status", "op", op, "status", resp.StatusCode)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProxyBodyBytes)).Decode(v); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryCount(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}
	resp, err := s.gateway.ListChats(r.Context(), a, queryCount(r))
	s.relay(w, "list-chats", resp, err)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}
	resp, err := s.gateway.ListMessages(r.Context(), a, r.PathValue("phone"), queryCount(r))
	s.relay(w, "list-messages", resp, err)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "phone and message are required")
		return
	}
	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}

	var (
		resp *gwclient.Response
		err  error
	)
	if req.ReplyTo != "" {
		resp, err = s.gateway.SendReply(r.Context(), a, req.Phone, req.Message, req.ReplyTo)
	} else {
		resp, err = s.gateway.SendText(r.Context(), a, req.Phone, req.Message)
	}
	s.relay(w, "send-message", resp, err)
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	var req sendMediaRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Base64 == "" {
		s.sendJSONError(w, http.StatusBadRequest, "phone and base64 are required")
		return
	}

	switch req.Type {
	case "", "image", "file", "audio":
	default:
		s.sendJSONError(w, http.StatusBadRequest, "type must be image, file or audio")
		return
	}

	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}

	m := gwclient.Media{Filename: req.Filename, Caption: req.Caption, Base64: req.Base64}
	var (
		resp *gwclient.Response
		err  error
	)
	switch req.Type {
	case "file":
		resp, err = s.gateway.SendFile(r.Context(), a, req.Phone, m)
	case "audio":
		resp, err = s.gateway.SendAudio(r.Context(), a, req.Phone, m)
	default:
		resp, err = s.gateway.SendImage(r.Context(), a, req.Phone, m)
	}
	s.relay(w, "send-media", resp, err)
}

func (s *Server) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	var req downloadMediaRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}
	resp, err := s.gateway.DownloadMedia(r.Context(), a, req.MessageID)
	s.relay(w, "download-media", resp, err)
}

func (s *Server) handleProfilePicture(w http.ResponseWriter, r *http.Request) {
	a, ok := s.sessionAuth(w, r)
	if !ok {
		return
	}
	resp, err := s.gateway.GetProfilePicture(r.Context(), a, r.PathValue("phone"))
	s.relay(w, "profile-picture", resp, err)
}
