// ABOUTME: Boundary validation for inbound webhook bodies
// ABOUTME: Rejects non-object bodies and missing sessions, then decodes the typed variant

package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Parse errors. Both map to HTTP 400.
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingSession   = errors.New("missing session")
)

// Parse validates a webhook body and decodes the payload variant for its
// event kind. Only a body that is not a JSON object, or one without a
// session, is an error. Unknown event names parse as Unrecognized, and
// variant fields with unreadable shapes are left zero and reported in
// DecodeErr.
func Parse(body []byte, now time.Time) (*InboundEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}

	session, _ := raw["session"].(string)
	session = strings.TrimSpace(session)
	if session == "" {
		return nil, ErrMissingSession
	}

	name, _ := raw["event"].(string)
	ev := &InboundEvent{
		Kind:       KindOf(name),
		Name:       name,
		SessionID:  session,
		Raw:        raw,
		ReceivedAt: now,
	}

	payload, err := decodePayload(ev.Kind, body)
	if err != nil {
		ev.DecodeErr = fmt.Errorf("%s: %w", name, err)
	}
	ev.Payload = payload
	return ev, nil
}

// decodePayload decodes the variant for kind. When a field has a shape the
// variant cannot read, the body is decoded again one field at a time so the
// readable fields survive; the first error is still returned.
func decodePayload(kind EventKind, body []byte) (Payload, error) {
	p := newPayload(kind)
	if p == nil {
		return nil, nil
	}
	err := json.Unmarshal(body, p)
	if err == nil {
		return p, nil
	}

	p = newPayload(kind)
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) == nil {
		for key, value := range fields {
			one, merr := json.Marshal(map[string]json.RawMessage{key: value})
			if merr != nil {
				continue
			}
			_ = json.Unmarshal(one, p)
		}
	}
	return p, err
}

func newPayload(kind EventKind) Payload {
	var p Payload
	switch kind {
	case StatusChange:
		p = &StatusPayload{}
	case QrCode:
		p = &QrPayload{}
	case Disconnected:
		p = &DisconnectPayload{}
	case MessageReceived:
		p = &MessagePayload{}
	case MessageAck:
		p = &AckPayload{}
	case MessageSent:
		p = &SentPayload{}
	case IncomingCall:
		p = &CallPayload{}
	}
	return p
}

// WithSession returns body with "session" set to name when the body lacks
// one. Bodies that are not JSON objects are returned unchanged so Parse can
// reject them.
func WithSession(body []byte, name string) []byte {
	if strings.TrimSpace(name) == "" {
		return body
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return body
	}
	if s, _ := raw["session"].(string); strings.TrimSpace(s) != "" {
		return body
	}
	raw["session"] = name
	out, err := json.Marshal(raw)
	if err != nil {
		return body
	}
	return out
}
