// ABOUTME: Inbound gateway event model and event-name classification
// ABOUTME: Maps WPPConnect webhook names and their aliases onto a closed EventKind set

package webhook

import (
	"strings"
	"time"
)

// EventKind classifies an inbound webhook.
type EventKind int

// Event kinds.
const (
	Unrecognized EventKind = iota
	StatusChange
	Connected
	Disconnected
	QrCode
	MessageReceived
	MessageAck
	MessageSent
	IncomingCall
)

var kindNames = map[EventKind]string{
	Unrecognized:    "unrecognized",
	StatusChange:    "status_change",
	Connected:       "connected",
	Disconnected:    "disconnected",
	QrCode:          "qrcode",
	MessageReceived: "message_received",
	MessageAck:      "message_ack",
	MessageSent:     "message_sent",
	IncomingCall:    "incoming_call",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unrecognized"
}

// eventNames maps lowercased gateway event names to kinds.
var eventNames = map[string]EventKind{
	"status-find":          StatusChange,
	"status":               StatusChange,
	"session-logged":       Connected,
	"connected":            Connected,
	"session-disconnected": Disconnected,
	"disconnected":         Disconnected,
	"qrcode":               QrCode,
	"onmessage":            MessageReceived,
	"message":              MessageReceived,
	"onack":                MessageAck,
	"ack":                  MessageAck,
	"onselfmessage":        MessageSent,
	"message-sent":         MessageSent,
	"incomingcall":         IncomingCall,
	"call":                 IncomingCall,
}

// KindOf classifies a gateway event name. Unknown names are Unrecognized.
func KindOf(name string) EventKind {
	if kind, ok := eventNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return kind
	}
	return Unrecognized
}

// InboundEvent is one parsed webhook call. Payload holds the typed variant
// for Kind and is nil for Connected and Unrecognized events.
type InboundEvent struct {
	Kind       EventKind
	Name       string
	SessionID  string
	Payload    Payload
	Raw        map[string]any
	ReceivedAt time.Time

	// DecodeErr is set when some payload fields had shapes that could not be
	// read. Those fields are left zero and the event is still dispatched.
	DecodeErr error
}

// closedStatuses are status-find values meaning the browser session ended.
var closedStatuses = map[string]bool{
	"closed":          true,
	"browserclose":    true,
	"autoclosecalled": true,
}

// IsClosedStatus reports whether a status-find value means the session closed.
func IsClosedStatus(status string) bool {
	return closedStatuses[strings.ToLower(strings.TrimSpace(status))]
}
