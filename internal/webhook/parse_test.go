// ABOUTME: Tests for webhook body validation and typed payload decoding
// ABOUTME: Covers malformed bodies, missing sessions, event aliases and loose id shapes

package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", `{"event":`, ErrMalformedPayload},
		{"array", `[1,2,3]`, ErrMalformedPayload},
		{"string", `"hello"`, ErrMalformedPayload},
		{"null", `null`, ErrMalformedPayload},
		{"empty", ``, ErrMalformedPayload},
		{"no session", `{"event":"onmessage"}`, ErrMissingSession},
		{"blank session", `{"event":"onmessage","session":"  "}`, ErrMissingSession},
		{"numeric session", `{"event":"onmessage","session":42}`, ErrMissingSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.body), parseTime)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, ev)
		})
	}
}

func TestParse_EventAliases(t *testing.T) {
	tests := map[string]EventKind{
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
		"OnMessage":            MessageReceived,
		"unknown_future_event": Unrecognized,
		"":                     Unrecognized,
	}

	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, KindOf(name))
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	ev, err := Parse([]byte(`{"event":"unknown_future_event","session":"s1","x":1}`), parseTime)
	require.NoError(t, err)
	assert.Equal(t, Unrecognized, ev.Kind)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Nil(t, ev.Payload)
	assert.Equal(t, parseTime, ev.ReceivedAt)
}

func TestParse_Message(t *testing.T) {
	body := `{
		"event": "onmessage",
		"session": "shop-1",
		"id": "false_5511@c.us_ABC",
		"from": "5511999990000@c.us",
		"type": "chat",
		"body": "hi there",
		"sender": {"pushname": "", "name": "Ana", "formattedName": "+55 11 99999-0000"}
	}`
	ev, err := Parse([]byte(body), parseTime)
	require.NoError(t, err)
	require.Equal(t, MessageReceived, ev.Kind)

	msg, ok := ev.Payload.(*MessagePayload)
	require.True(t, ok)
	assert.Equal(t, JID("5511999990000@c.us"), msg.From)
	assert.Equal(t, "chat", msg.Type)
	assert.Equal(t, "hi there", msg.Body)
	assert.Equal(t, MessageID("false_5511@c.us_ABC"), msg.ID)
	assert.Equal(t, "Ana", msg.DisplayName())
	assert.Equal(t, "hi there", ev.Raw["body"])
}

func TestMessagePayload_DisplayNameOrder(t *testing.T) {
	tests := []struct {
		name string
		msg  MessagePayload
		want string
	}{
		{"notify name wins", MessagePayload{NotifyName: "N", Sender: &Sender{PushName: "P", Name: "A", FormattedName: "F"}}, "N"},
		{"push name", MessagePayload{Sender: &Sender{PushName: "P", Name: "A", FormattedName: "F"}}, "P"},
		{"name", MessagePayload{Sender: &Sender{Name: "A", FormattedName: "F"}}, "A"},
		{"formatted", MessagePayload{Sender: &Sender{FormattedName: "F"}}, "F"},
		{"whitespace skipped", MessagePayload{NotifyName: "  ", Sender: &Sender{Name: "A"}}, "A"},
		{"none", MessagePayload{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.DisplayName())
		})
	}
}

func TestParse_AckIDShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		id   MessageID
		ack  AckLevel
	}{
		{"string id", `{"event":"onack","session":"s","id":"abc","ack":2}`, "abc", 2},
		{"serialized object", `{"event":"onack","session":"s","id":{"fromMe":true,"id":"inner","_serialized":"true_55@c.us_inner"},"ack":3}`, "true_55@c.us_inner", 3},
		{"id object", `{"event":"onack","session":"s","id":{"id":"inner"},"ack":"1"}`, "inner", 1},
		{"null id", `{"event":"onack","session":"s","id":null}`, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.body), parseTime)
			require.NoError(t, err)
			ack, ok := ev.Payload.(*AckPayload)
			require.True(t, ok)
			assert.Equal(t, tt.id, ack.ID)
			assert.Equal(t, tt.ack, ack.Ack)
		})
	}
}

func TestParse_Call(t *testing.T) {
	ev, err := Parse([]byte(`{"event":"incomingcall","session":"s","id":"call-1","peerJid":"777@lid","isGroup":false}`), parseTime)
	require.NoError(t, err)
	call, ok := ev.Payload.(*CallPayload)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.CallID)
	assert.Equal(t, "777@lid", call.Caller())

	fallback := CallPayload{From: "5511@c.us"}
	assert.Equal(t, "5511@c.us", fallback.Caller())
}

func TestParse_LooseFieldShapes(t *testing.T) {
	t.Run("sender id object and quoted flag", func(t *testing.T) {
		body := `{"event":"onmessage","session":"s","from":{"_serialized":"2739@lid"},` +
			`"isGroupMsg":"false","sender":{"id":{"user":"2739","server":"lid"},"pushname":"Ana"}}`
		ev, err := Parse([]byte(body), parseTime)
		require.NoError(t, err)
		assert.NoError(t, ev.DecodeErr)
		msg, ok := ev.Payload.(*MessagePayload)
		require.True(t, ok)
		assert.Equal(t, JID("2739@lid"), msg.From)
		assert.False(t, bool(msg.IsGroupMsg))
		require.NotNil(t, msg.Sender)
		assert.Equal(t, JID("2739@lid"), msg.Sender.ID)
		assert.Equal(t, "Ana", msg.DisplayName())
	})

	t.Run("numeric flags and ids", func(t *testing.T) {
		body := `{"event":"incomingcall","session":"s","id":"c1","peerJid":5511,"isGroup":0,"isVideo":"1"}`
		ev, err := Parse([]byte(body), parseTime)
		require.NoError(t, err)
		call, ok := ev.Payload.(*CallPayload)
		require.True(t, ok)
		assert.Equal(t, "5511", call.Caller())
		assert.False(t, bool(call.IsGroup))
		assert.True(t, bool(call.IsVideo))
	})

	t.Run("unreadable field keeps the rest", func(t *testing.T) {
		body := `{"event":"onack","session":"s","id":"m1","ack":"read","from":"55@c.us"}`
		ev, err := Parse([]byte(body), parseTime)
		require.NoError(t, err)
		assert.Error(t, ev.DecodeErr)
		ack, ok := ev.Payload.(*AckPayload)
		require.True(t, ok)
		assert.Equal(t, MessageID("m1"), ack.ID)
		assert.Equal(t, JID("55@c.us"), ack.From)
		assert.Zero(t, ack.Ack)
	})

	t.Run("mistyped plain field", func(t *testing.T) {
		ev, err := Parse([]byte(`{"event":"onmessage","session":"s","from":"55@c.us","body":{"text":"x"}}`), parseTime)
		require.NoError(t, err)
		assert.Error(t, ev.DecodeErr)
		msg, ok := ev.Payload.(*MessagePayload)
		require.True(t, ok)
		assert.Equal(t, JID("55@c.us"), msg.From)
		assert.Empty(t, msg.Body)
	})
}

func TestIsClosedStatus(t *testing.T) {
	for _, s := range []string{"CLOSED", "closed", "browserClose", "BROWSERCLOSE", "autocloseCalled"} {
		assert.True(t, IsClosedStatus(s), s)
	}
	for _, s := range []string{"inChat", "qrReadSuccess", "isLogged", ""} {
		assert.False(t, IsClosedStatus(s), s)
	}
}

func TestWithSession(t *testing.T) {
	out := WithSession([]byte(`{"event":"onack"}`), "from-path")
	ev, err := Parse(out, parseTime)
	require.NoError(t, err)
	assert.Equal(t, "from-path", ev.SessionID)

	kept := WithSession([]byte(`{"event":"onack","session":"body"}`), "from-path")
	ev, err = Parse(kept, parseTime)
	require.NoError(t, err)
	assert.Equal(t, "body", ev.SessionID)

	assert.Equal(t, []byte(`[1]`), WithSession([]byte(`[1]`), "x"))
	assert.Equal(t, []byte(`{}`), WithSession([]byte(`{}`), ""))
}
