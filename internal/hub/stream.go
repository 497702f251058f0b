// ABOUTME: Stream loop that drains a viewer queue into a transport-specific writer
// ABOUTME: Emits a connected frame first and a heartbeat whenever the queue stays idle

package hub

import (
	"context"
	"fmt"
	"time"
)

// EventConnected is the synthetic first frame of every stream.
const EventConnected = "connected"

// FrameWriter writes frames to one viewer connection (SSE, WebSocket).
type FrameWriter interface {
	WriteEvent(ev OutboundEvent) error
	WriteHeartbeat() error
}

// Stream subscribes viewerID and pumps its queue into w until ctx is
// cancelled, w fails, or the queue is removed. The queue is released on
// every exit path. Cancellation returns nil.
func (h *Hub) Stream(ctx context.Context, viewerID int64, w FrameWriter) error {
	sub := h.Subscribe(viewerID)
	defer sub.Close()

	logger := h.logger.With("viewer_id", viewerID)
	logger.Info("viewer stream opened")
	defer logger.Info("viewer stream closed")

	hello := h.newEvent(EventConnected, map[string]any{"viewer_id": viewerID})
	if err := w.WriteEvent(hello); err != nil {
		return fmt.Errorf("writing connected frame: %w", err)
	}

	timer := time.NewTimer(h.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				return ErrStreamClosed
			}
			if err := w.WriteEvent(ev); err != nil {
				return fmt.Errorf("writing %s frame: %w", ev.Type, err)
			}

		case <-timer.C:
			if err := w.WriteHeartbeat(); err != nil {
				return fmt.Errorf("writing heartbeat: %w", err)
			}
		}
		timer.Reset(h.heartbeat)
	}
}
