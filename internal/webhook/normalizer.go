// ABOUTME: Routes parsed webhook events to their single handler
// ABOUTME: Session bookkeeping, identifier resolution, viewer broadcasts and call automation

package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/switchboard/internal/callflow"
	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/store"
)

// Event types pushed to viewers.
const (
	EventNewMessage  = "new_message"
	EventMessageAck  = "message_ack"
	EventMessageSent = "message_sent"
)

// Resolver accepts opaque identifiers for background resolution.
type Resolver interface {
	Enqueue(ctx context.Context, identifier, sessionName string) bool
}

// Publisher fans events out to viewers.
type Publisher interface {
	Broadcast(kind string, data map[string]any) int
}

// CallHandler runs the incoming-call automation.
type CallHandler interface {
	Handle(ctx context.Context, call callflow.CallAttempt) callflow.State
}

// Normalizer dispatches inbound events.
type Normalizer struct {
	sessions  store.SessionStore
	resolver  Resolver
	publisher Publisher
	calls     CallHandler
	now       func() time.Time
	logger    *slog.Logger
}

// NewNormalizer creates a Normalizer. Pass nil logger for default.
func NewNormalizer(sessions store.SessionStore, resolver Resolver, publisher Publisher, calls CallHandler, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		sessions:  sessions,
		resolver:  resolver,
		publisher: publisher,
		calls:     calls,
		now:       time.Now,
		logger:    logger.With("component", "webhook"),
	}
}

// Handle parses body and dispatches it. Only parse errors are returned.
func (n *Normalizer) Handle(ctx context.Context, body []byte) (*InboundEvent, error) {
	ev, err := Parse(body, n.now())
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			n.logger.Error("rejecting webhook", "error", err)
		} else {
			n.logger.Warn("rejecting webhook", "error", err)
		}
		return nil, err
	}
	if ev.DecodeErr != nil {
		n.logger.Warn("webhook payload partially decoded",
			"session", ev.SessionID, "event", ev.Name, "error", ev.DecodeErr)
	}
	n.Dispatch(ctx, ev)
	return ev, nil
}

// Dispatch runs exactly one handler for ev, synchronously.
func (n *Normalizer) Dispatch(ctx context.Context, ev *InboundEvent) {
	logger := n.logger.With("session", ev.SessionID, "event", ev.Name)

	switch p := ev.Payload.(type) {
	case *StatusPayload:
		n.handleStatus(ctx, logger, ev, p)
	case *DisconnectPayload:
		logger.Info("session disconnected", "reason", p.Reason)
		n.deactivate(ctx, logger, ev.SessionID)
	case *QrPayload:
		logger.Info("pairing code issued", "attempt", p.Attempt)
	case *MessagePayload:
		n.handleMessage(ctx, logger, ev, p)
	case *AckPayload:
		n.publisher.Broadcast(EventMessageAck, map[string]any{
			"session": ev.SessionID,
			"id":      string(p.ID),
			"ack":     int(p.Ack),
			"from":    string(p.From),
			"to":      string(p.To),
		})
	case *SentPayload:
		n.publisher.Broadcast(EventMessageSent, map[string]any{
			"session": ev.SessionID,
			"id":      string(p.ID),
			"to":      string(p.To),
			"type":    p.Type,
			"message": ev.Raw,
		})
	case *CallPayload:
		n.handleCall(ctx, logger, ev, p)
	default:
		if ev.Kind == Connected {
			logger.Info("session connected")
			return
		}
		logger.Debug("ignoring unrecognized event")
	}
}

func (n *Normalizer) handleStatus(ctx context.Context, logger *slog.Logger, ev *InboundEvent, p *StatusPayload) {
	logger.Debug("session status", "status", p.Status)
	if !IsClosedStatus(p.Status) {
		return
	}
	n.deactivate(ctx, logger, ev.SessionID)
}

// deactivate is idempotent: a session closed by one event stays closed when
// another event for the same closure arrives.
func (n *Normalizer) deactivate(ctx context.Context, logger *slog.Logger, session string) {
	changed, err := n.sessions.DeactivateSession(ctx, session)
	if err != nil {
		logger.Error("failed to deactivate session", "error", err)
		return
	}
	if changed {
		logger.Info("session marked inactive")
	} else {
		logger.Debug("no active session to deactivate")
	}
}

func (n *Normalizer) handleMessage(ctx context.Context, logger *slog.Logger, ev *InboundEvent, p *MessagePayload) {
	from := string(p.From)
	if gwclient.IsOpaque(from) && !gwclient.IsGroup(from) {
		if !n.resolver.Enqueue(ctx, from, ev.SessionID) {
			logger.Debug("sender not queued for resolution", "from", from)
		}
	}

	delivered := n.publisher.Broadcast(EventNewMessage, map[string]any{
		"session":     ev.SessionID,
		"from":        from,
		"sender_name": p.DisplayName(),
		"type":        p.Type,
		"message":     ev.Raw,
	})
	logger.Debug("message broadcast", "from", from, "type", p.Type, "viewers", delivered)
}

func (n *Normalizer) handleCall(ctx context.Context, logger *slog.Logger, ev *InboundEvent, p *CallPayload) {
	caller := p.Caller()
	call := callflow.CallAttempt{
		CallID:    p.CallID,
		CallerID:  caller,
		SessionID: ev.SessionID,
		IsGroup:   bool(p.IsGroup) || gwclient.IsGroup(caller),
	}
	state := n.calls.Handle(ctx, call)
	logger.Debug("incoming call handled", "call_id", p.CallID, "caller", caller, "state", state.String())
}
