// ABOUTME: HTTP client for the WPPConnect-compatible messaging gateway API
// ABOUTME: Every call is rate limited and returns the raw payload plus status code

package gwclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a gateway response is read.
const maxBodyBytes = 32 << 20

// ErrUnresolved is returned when the gateway has no phone number for an identifier.
var ErrUnresolved = errors.New("identifier could not be resolved")

// Auth identifies the gateway session a call acts on.
type Auth struct {
	Session string
	Token   string
}

// Response is a completed gateway call.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports whether the gateway answered with a 2xx code.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// StatusError is returned for non-2xx gateway answers. The Response is still
// returned alongside it.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, body)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client // optional, overrides Timeout
	Logger        *slog.Logger
}

// Client talks to the gateway's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client. A zero RatePerSecond disables rate limiting.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		logger:  logger.With("component", "gwclient"),
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, auth Auth, phone, text string) (*Response, error) {
	return c.do(ctx, "send-text", http.MethodPost, auth, "send-message", map[string]any{
		"phone":   phone,
		"isGroup": IsGroup(phone),
		"message": text,
	})
}

// SendReply sends a text message quoting messageID.
func (c *Client) SendReply(ctx context.Context, auth Auth, phone, text, messageID string) (*Response, error) {
	return c.do(ctx, "send-reply", http.MethodPost, auth, "send-reply", map[string]any{
		"phone":     phone,
		"isGroup":   IsGroup(phone),
		"message":   text,
		"messageId": messageID,
	})
}

// Media is a base64-encoded attachment.
type Media struct {
	Filename string
	Caption  string
	Base64   string // data URI or raw base64
}

// SendImage sends an image with an optional caption.
func (c *Client) SendImage(ctx context.Context, auth Auth, phone string, m Media) (*Response, error) {
	return c.do(ctx, "send-image", http.MethodPost, auth, "send-image", map[string]any{
		"phone":    phone,
		"isGroup":  IsGroup(phone),
		"filename": m.Filename,
		"caption":  m.Caption,
		"base64":   m.Base64,
	})
}

// SendFile sends a document.
func (c *Client) SendFile(ctx context.Context, auth Auth, phone string, m Media) (*Response, error) {
	return c.do(ctx, "send-file", http.MethodPost, auth, "send-file", map[string]any{
		"phone":    phone,
		"isGroup":  IsGroup(phone),
		"filename": m.Filename,
		"caption":  m.Caption,
		"base64":   m.Base64,
	})
}

// SendAudio sends a voice note.
func (c *Client) SendAudio(ctx context.Context, auth Auth, phone string, m Media) (*Response, error) {
	return c.do(ctx, "send-audio", http.MethodPost, auth, "send-voice-base64", map[string]any{
		"phone":     phone,
		"isGroup":   IsGroup(phone),
		"base64Ptt": m.Base64,
	})
}

// RejectCall declines an incoming call.
func (c *Client) RejectCall(ctx context.Context, auth Auth, callID string) (*Response, error) {
	return c.do(ctx, "reject-call", http.MethodPost, auth, "reject-call", map[string]any{
		"callId": callID,
	})
}

// MarkUnread flags a chat as unread.
func (c *Client) MarkUnread(ctx context.Context, auth Auth, phone string) (*Response, error) {
	return c.do(ctx, "mark-unread", http.MethodPost, auth, "mark-unseen", map[string]any{
		"phone":   phone,
		"isGroup": IsGroup(phone),
	})
}

// DownloadMedia fetches the media attached to a message.
func (c *Client) DownloadMedia(ctx context.Context, auth Auth, messageID string) (*Response, error) {
	return c.do(ctx, "download-media", http.MethodPost, auth, "download-media", map[string]any{
		"messageId": messageID,
	})
}

// GetProfilePicture returns the profile picture URL payload for a contact.
func (c *Client) GetProfilePicture(ctx context.Context, auth Auth, phone string) (*Response, error) {
	return c.do(ctx, "profile-picture", http.MethodGet, auth, "profile-pic/"+url.PathEscape(phone), nil)
}

// ListChats lists chats known to the session.
func (c *Client) ListChats(ctx context.Context, auth Auth, count int) (*Response, error) {
	body := map[string]any{}
	if count > 0 {
		body["count"] = count
	}
	return c.do(ctx, "list-chats", http.MethodPost, auth, "list-chats", body)
}

// ListMessages lists recent messages of one chat.
func (c *Client) ListMessages(ctx context.Context, auth Auth, phone string, count int) (*Response, error) {
	path := "get-messages/" + url.PathEscape(phone)
	if count > 0 {
		path += fmt.Sprintf("?count=%d", count)
	}
	return c.do(ctx, "list-messages", http.MethodGet, auth, path, nil)
}

// ResolveIdentifier asks the gateway for the phone number behind an opaque
// identifier. It returns ErrUnresolved when the gateway answers without one.
func (c *Client) ResolveIdentifier(ctx context.Context, auth Auth, identifier string) (string, error) {
	resp, err := c.do(ctx, "resolve-identifier", http.MethodGet, auth, "contact/pn-lid/"+url.PathEscape(identifier), nil)
	if err != nil {
		return "", err
	}

	phone := extractPhone(resp.Body)
	if phone == "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, identifier)
	}
	return phone, nil
}

// do performs one gateway call. Transport failures return a nil Response;
// non-2xx answers return both the Response and a *StatusError.
func (c *Client) do(ctx context.Context, op, method string, auth Auth, path string, body any) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gateway %s: rate limiter: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: encoding body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + "/api/" + url.PathEscape(auth.Session) + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gateway %s: reading body: %w", op, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Body: raw}
	c.logger.Debug("gateway call",
		"op", op,
		"session", auth.Session,
		"status", httpResp.StatusCode,
		"duration", time.Since(start))

	if !resp.OK() {
		return resp, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

// extractPhone digs the phone number out of a pn-lid lookup. The gateway has
// shipped several shapes: the lookup may be wrapped in "response", and
// phoneNumber may be a plain string or a JID object.
func extractPhone(body []byte) string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return ""
	}
	if inner, ok := top["response"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			top = nested
		}
	}

	raw, ok := top["phoneNumber"]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return PhoneFromJID(s)
	}

	var jid struct {
		User       string `json:"user"`
		Serialized string `json:"_serialized"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(raw, &jid); err != nil {
		return ""
	}
	switch {
	case jid.User != "":
		return jid.User
	case jid.Serialized != "":
		return PhoneFromJID(jid.Serialized)
	default:
		return PhoneFromJID(jid.ID)
	}
}
