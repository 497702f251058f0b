// ABOUTME: Typed payload variants decoded per event kind at the webhook boundary
// ABOUTME: Tolerates the gateway's loose shapes for ids, ack levels and sender names

package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is the typed body of an inbound event.
type Payload interface {
	payloadKind() EventKind
}

// StatusPayload is a status-find update.
type StatusPayload struct {
	Status string `json:"status"`
}

// QrPayload carries a pairing code.
type QrPayload struct {
	Code    string `json:"qrcode"`
	URLCode string `json:"urlcode"`
	Attempt int    `json:"attempt"`
}

// DisconnectPayload is a session-disconnected notice.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// Sender is the author block of a message.
type Sender struct {
	ID            JID    `json:"id"`
	PushName      string `json:"pushname"`
	Name          string `json:"name"`
	FormattedName string `json:"formattedName"`
}

// MessagePayload is an inbound chat message.
type MessagePayload struct {
	ID         MessageID `json:"id"`
	From       JID       `json:"from"`
	To         JID       `json:"to"`
	Type       string    `json:"type"`
	Body       string    `json:"body"`
	NotifyName string    `json:"notifyName"`
	Sender     *Sender   `json:"sender"`
	IsGroupMsg Flag      `json:"isGroupMsg"`
}

// DisplayName returns the first non-empty of notifyName, sender.pushname,
// sender.name and sender.formattedName.
func (m *MessagePayload) DisplayName() string {
	candidates := []string{m.NotifyName}
	if m.Sender != nil {
		candidates = append(candidates, m.Sender.PushName, m.Sender.Name, m.Sender.FormattedName)
	}
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

// AckPayload is a delivery/read receipt.
type AckPayload struct {
	ID   MessageID `json:"id"`
	Ack  AckLevel  `json:"ack"`
	From JID       `json:"from"`
	To   JID       `json:"to"`
}

// SentPayload is a message sent from the session itself.
type SentPayload struct {
	ID   MessageID `json:"id"`
	To   JID       `json:"to"`
	Type string    `json:"type"`
	Body string    `json:"body"`
}

// CallPayload is an incoming call offer.
type CallPayload struct {
	CallID  string `json:"id"`
	PeerJID JID    `json:"peerJid"`
	From    JID    `json:"from"`
	IsGroup Flag   `json:"isGroup"`
	IsVideo Flag   `json:"isVideo"`
}

// Caller returns the calling identifier.
func (c *CallPayload) Caller() string {
	if c.PeerJID != "" {
		return string(c.PeerJID)
	}
	return string(c.From)
}

func (*StatusPayload) payloadKind() EventKind     { return StatusChange }
func (*QrPayload) payloadKind() EventKind         { return QrCode }
func (*DisconnectPayload) payloadKind() EventKind { return Disconnected }
func (*MessagePayload) payloadKind() EventKind    { return MessageReceived }
func (*AckPayload) payloadKind() EventKind        { return MessageAck }
func (*SentPayload) payloadKind() EventKind       { return MessageSent }
func (*CallPayload) payloadKind() EventKind       { return IncomingCall }

// JID accepts a contact identifier as a plain string or as the gateway's
// wid object ({"_serialized": ...} or {"user": ..., "server": ...}).
type JID string

// UnmarshalJSON implements json.Unmarshaler.
func (j *JID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*j = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*j = JID(s)
		return nil
	case data[0] != '{':
		// Bare numbers show up for phone-only ids.
		*j = JID(data)
		return nil
	}

	var obj struct {
		Serialized string `json:"_serialized"`
		User       string `json:"user"`
		Server     string `json:"server"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.Serialized != "":
		*j = JID(obj.Serialized)
	case obj.User != "" && obj.Server != "":
		*j = JID(obj.User + "@" + obj.Server)
	default:
		*j = JID(obj.User)
	}
	return nil
}

// Flag is a boolean that also accepts 0/1 and quoted forms. Values it cannot
// read are false.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		*f = true
	default:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			*f = n != 0
			return nil
		}
		*f = false
	}
	return nil
}

// MessageID accepts either a plain string or the gateway's id object
// ({"_serialized": ...} or {"id": ...}).
type MessageID string

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MessageID(s)
		return nil
	}

	var obj struct {
		Serialized string `json:"_serialized"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Serialized != "" {
		*m = MessageID(obj.Serialized)
	} else {
		*m = MessageID(obj.ID)
	}
	return nil
}

// AckLevel accepts a number or a numeric string.
type AckLevel int

// UnmarshalJSON implements json.Unmarshaler.
func (a *AckLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*a = AckLevel(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = AckLevel(int(n))
	return nil
}
