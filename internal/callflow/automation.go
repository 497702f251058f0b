// ABOUTME: Incoming-call automation: reject, then message the caller and mark the chat unread
// ABOUTME: The gate and rejection run inline; the paced follow-up runs on the worker pool

package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/worker"
)

// Defaults for the follow-up.
const (
	DefaultMessageDelay = 2 * time.Second
	DefaultUnreadDelay  = 10 * time.Second
	DefaultMessage      = "Sorry, we cannot take calls on this number. Please send us a text message."
)

// CallAttempt is one incoming call offer.
type CallAttempt struct {
	CallID    string
	CallerID  string
	SessionID string
	IsGroup   bool
}

// Gateway is the slice of the gateway client the automation calls.
type Gateway interface {
	RejectCall(ctx context.Context, auth gwclient.Auth, callID string) (*gwclient.Response, error)
	SendText(ctx context.Context, auth gwclient.Auth, phone, text string) (*gwclient.Response, error)
	MarkUnread(ctx context.Context, auth gwclient.Auth, phone string) (*gwclient.Response, error)
}

// Resolver maps an opaque caller identifier to a phone number.
type Resolver interface {
	Resolve(ctx context.Context, sess *store.Session, identifier string) (string, error)
}

// Scheduler runs detached work.
type Scheduler interface {
	Submit(name string, fn worker.Func) bool
}

// Config holds the follow-up policy. Zero delays are honored as zero.
type Config struct {
	Message      string
	MessageDelay time.Duration
	UnreadDelay  time.Duration
	Location     *time.Location
}

// Automation handles incoming calls.
type Automation struct {
	cfg       Config
	sessions  store.SessionStore
	gateway   Gateway
	resolver  Resolver
	scheduler Scheduler
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option configures an Automation.
type Option func(*Automation)

// WithClock overrides the time source used by the rejection gate.
func WithClock(now func() time.Time) Option {
	return func(a *Automation) { a.now = now }
}

// WithSleep overrides how the follow-up waits between steps.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Automation) { a.sleep = sleep }
}

// New creates an Automation. Pass nil logger for default.
func New(cfg Config, sessions store.SessionStore, gateway Gateway, resolver Resolver, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Automation {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	a := &Automation{
		cfg:       cfg,
		sessions:  sessions,
		gateway:   gateway,
		resolver:  resolver,
		scheduler: scheduler,
		now:       time.Now,
		sleep:     sleepContext,
		logger:    logger.With("component", "callflow"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle runs the synchronous part of the automation and schedules the
// follow-up. It returns the state reached before returning to the caller:
// PendingMessage when the follow-up was scheduled.
func (a *Automation) Handle(ctx context.Context, call CallAttempt) State {
	logger := a.logger.With("session", call.SessionID, "caller", call.CallerID, "call_id", call.CallID)

	sess, err := a.sessions.GetActiveSession(ctx, call.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("call ignored, no active session")
		} else {
			logger.Warn("call ignored, session lookup failed", "error", err)
		}
		return AbortedNoSession
	}

	if !a.gateOpen(sess) {
		logger.Debug("call allowed, reject gate closed",
			"reject_enabled", sess.RejectCallEnabled,
			"window_start", sess.RejectWindowStart,
			"window_end", sess.RejectWindowEnd)
		return GateClosed
	}

	auth := gwclient.Auth{Session: sess.Name, Token: sess.Token}
	if _, err := a.gateway.RejectCall(ctx, auth, call.CallID); err != nil {
		logger.Error("call rejection failed", "step", Rejected.String(), "error", err)
	} else {
		logger.Info("call rejected")
	}

	if call.IsGroup {
		return Done
	}

	if !a.scheduler.Submit("call-followup", func(ctx context.Context) error {
		a.followUp(ctx, sess, call)
		return nil
	}) {
		logger.Error("call follow-up not scheduled", "step", PendingMessage.String())
		return Rejected
	}
	return PendingMessage
}

func (a *Automation) gateOpen(sess *store.Session) bool {
	if !sess.RejectCallEnabled {
		return false
	}
	return InWindow(a.now().In(a.cfg.Location), sess.RejectWindowStart, sess.RejectWindowEnd)
}

// followUp resolves the caller if needed, waits, sends the informational
// message, waits, and marks the chat unread. Step failures are logged and
// the sequence continues; a panic ends it.
func (a *Automation) followUp(ctx context.Context, sess *store.Session, call CallAttempt) (state State) {
	logger := a.logger.With("session", call.SessionID, "caller", call.CallerID, "call_id", call.CallID)
	state = Rejected
	defer func() {
		if r := recover(); r != nil {
			logger.Error("call follow-up panicked", "step", state.String(), "panic", r)
			return
		}
		logger.Debug("call follow-up finished", "state", state.String())
	}()

	auth := gwclient.Auth{Session: sess.Name, Token: sess.Token}
	phone := gwclient.PhoneFromJID(call.CallerID)
	if gwclient.IsOpaque(call.CallerID) {
		resolved, err := a.resolver.Resolve(ctx, sess, call.CallerID)
		if err != nil {
			logger.Warn("call follow-up aborted, caller unresolved", "step", "resolve", "error", err)
			return AbortedUnresolved
		}
		phone = resolved
		logger = logger.With("phone", phone)
	}

	state = PendingMessage
	if err := a.sleep(ctx, a.cfg.MessageDelay); err != nil {
		logger.Warn("call follow-up interrupted", "step", state.String(), "error", err)
		return state
	}
	if _, err := a.gateway.SendText(ctx, auth, phone, a.cfg.Message); err != nil {
		logger.Error("call message failed", "step", state.String(), "error", err)
	} else {
		logger.Info("call message sent")
	}

	state = MessageSent
	if err := a.sleep(ctx, a.cfg.UnreadDelay); err != nil {
		logger.Warn("call follow-up interrupted", "step", state.String(), "error", err)
		return state
	}

	state = PendingUnread
	if _, err := a.gateway.MarkUnread(ctx, auth, phone); err != nil {
		logger.Error("mark unread failed", "step", state.String(), "error", err)
	}

	state = Done
	return state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting %s: %w", d, ctx.Err())
	}
}
