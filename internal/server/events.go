// ABOUTME: Viewer push-stream endpoints over Server-Sent Events and WebSocket
// ABOUTME: Both adapt the hub's FrameWriter; SSE heartbeats are comments, WS heartbeats are pings

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/hub"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // auth is via token
	},
}

// sseWriter frames hub events as text/event-stream.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseWriter) WriteEvent(ev hub.OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) WriteHeartbeat() error {
	if _, err := io.WriteString(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.ViewerFromContext(r.Context())
	if !ok {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err := s.hub.Stream(r.Context(), viewerID, &sseWriter{w: w, flusher: flusher})
	s.logStreamEnd(viewerID, "sse", err)
}

// wsWriter frames hub events as WebSocket text messages.
type wsWriter struct {
	conn *websocket.Conn
}

func (c *wsWriter) WriteEvent(ev hub.OutboundEvent) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

func (c *wsWriter) WriteHeartbeat() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.ViewerFromContext(r.Context())
	if !ok {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "viewer_id", viewerID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Viewers never send data; reading only surfaces the close and pong frames.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.hub.Stream(ctx, viewerID, &wsWriter{conn: conn})
	s.logStreamEnd(viewerID, "websocket", err)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) logStreamEnd(viewerID int64, transport string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, hub.ErrStreamClosed):
		s.logger.Debug("viewer stream superseded or hub closed", "viewer_id", viewerID, "transport", transport)
	default:
		s.logger.Debug("viewer stream ended", "viewer_id", viewerID, "transport", transport, "error", err)
	}
}
