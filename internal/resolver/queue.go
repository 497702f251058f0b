// ABOUTME: Asynchronous resolution of opaque contact identifiers to phone numbers
// ABOUTME: Deduplicated bounded queue, fixed worker set, persisted and broadcast results

package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/store"
)

// EventContactResolved is broadcast to viewers when a lookup succeeds.
const EventContactResolved = "contact_resolved"

// Gateway is the slice of the gateway client the resolver needs.
type Gateway interface {
	ResolveIdentifier(ctx context.Context, auth gwclient.Auth, identifier string) (string, error)
}

// Publisher receives resolved contacts.
type Publisher interface {
	Broadcast(kind string, data map[string]any) int
}

// Request is one pending lookup.
type Request struct {
	Identifier  string
	SessionName string
	Token       string
	EnqueuedAt  time.Time
}

func (r Request) key() string {
	return r.SessionName + ":" + r.Identifier
}

// Config sizes the queue.
type Config struct {
	Workers     int
	QueueSize   int
	InflightTTL time.Duration
}

// Queue resolves identifiers in the background.
type Queue struct {
	sessions  store.SessionStore
	contacts  store.ContactStore
	gateway   Gateway
	publisher Publisher

	workers  int
	requests chan Request
	inflight *inflightSet
	lookups  singleflight.Group
	logger   *slog.Logger
}

// New creates a Queue. Call Run to start the workers.
func New(cfg Config, sessions store.SessionStore, contacts store.ContactStore, gateway Gateway, publisher Publisher, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.InflightTTL <= 0 {
		cfg.InflightTTL = 10 * time.Minute
	}

	// queued plus in-process is the most keys that can be outstanding
	maxPending := cfg.QueueSize + cfg.Workers

	return &Queue{
		sessions:  sessions,
		contacts:  contacts,
		gateway:   gateway,
		publisher: publisher,
		workers:   cfg.Workers,
		requests:  make(chan Request, cfg.QueueSize),
		inflight:  newInflightSet(cfg.InflightTTL, maxPending),
		logger:    logger.With("component", "resolver"),
	}
}

// Enqueue schedules a lookup without blocking. It returns false when the
// session is not active, the identifier is already pending, or the queue is
// full.
func (q *Queue) Enqueue(ctx context.Context, identifier, sessionName string) bool {
	sess, err := q.sessions.GetActiveSession(ctx, sessionName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			q.logger.Debug("skipping resolution, no active session",
				"session", sessionName, "identifier", identifier)
		} else {
			q.logger.Warn("skipping resolution, session lookup failed",
				"session", sessionName, "identifier", identifier, "error", err)
		}
		return false
	}

	req := Request{
		Identifier:  identifier,
		SessionName: sess.Name,
		Token:       sess.Token,
		EnqueuedAt:  time.Now(),
	}
	switch err := q.inflight.Acquire(req.key()); {
	case errors.Is(err, errAlreadyPending):
		q.logger.Debug("resolution already pending", "session", sessionName, "identifier", identifier)
		return false
	case err != nil:
		q.logger.Warn("resolution dropped, too many pending",
			"session", sessionName, "identifier", identifier, "error", err)
		return false
	}

	select {
	case q.requests <- req:
		q.logger.Debug("resolution queued", "session", sessionName, "identifier", identifier)
		return true
	default:
		q.inflight.Release(req.key())
		q.logger.Warn("resolution dropped, queue full",
			"session", sessionName, "identifier", identifier, "queue_size", cap(q.requests))
		return false
	}
}

// Pending returns the number of queued requests.
func (q *Queue) Pending() int {
	return len(q.requests)
}

// Run processes requests until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	defer q.inflight.Close()

	g, ctx := errgroup.WithContext(ctx)
	for i := range q.workers {
		g.Go(func() error {
			q.logger.Debug("resolver worker started", "worker", i)
			for {
				select {
				case <-ctx.Done():
					return nil
				case req := <-q.requests:
					q.process(ctx, req)
				}
			}
		})
	}
	return g.Wait()
}

func (q *Queue) process(ctx context.Context, req Request) {
	defer q.inflight.Release(req.key())

	logger := q.logger.With("session", req.SessionName, "identifier", req.Identifier)
	phone, err := q.resolve(ctx, gwclient.Auth{Session: req.SessionName, Token: req.Token}, req.Identifier)
	if err != nil {
		logger.Warn("resolution failed", "error", err)
		return
	}

	logger.Info("identifier resolved", "phone", phone, "waited", time.Since(req.EnqueuedAt))
	q.publisher.Broadcast(EventContactResolved, map[string]any{
		"session":    req.SessionName,
		"identifier": req.Identifier,
		"phone":      phone,
	})
}

// Resolve returns the phone number behind identifier, using the stored
// mapping when there is one. Concurrent calls for the same identifier share
// one gateway request. That request is detached from any single caller, so a
// caller giving up returns ctx.Err() without failing the others.
func (q *Queue) Resolve(ctx context.Context, sess *store.Session, identifier string) (string, error) {
	return q.resolve(ctx, gwclient.Auth{Session: sess.Name, Token: sess.Token}, identifier)
}

func (q *Queue) resolve(ctx context.Context, auth gwclient.Auth, identifier string) (string, error) {
	mapping, err := q.contacts.GetContact(ctx, auth.Session, identifier)
	if err == nil && mapping.Phone != "" {
		return mapping.Phone, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		q.logger.Warn("contact lookup failed, asking gateway",
			"session", auth.Session, "identifier", identifier, "error", err)
	}

	ch := q.lookups.DoChan(auth.Session+":"+identifier, func() (any, error) {
		lookupCtx := context.WithoutCancel(ctx)
		phone, err := q.gateway.ResolveIdentifier(lookupCtx, auth, identifier)
		if err != nil {
			return "", err
		}
		if err := q.contacts.SaveContact(lookupCtx, &store.ContactMapping{
			SessionName: auth.Session,
			Identifier:  identifier,
			Phone:       phone,
		}); err != nil {
			q.logger.Warn("saving contact failed",
				"session", auth.Session, "identifier", identifier, "error", err)
		}
		return phone, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("resolving %s: %w", identifier, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return "", fmt.Errorf("resolving %s: %w", identifier, res.Err)
	}
	if res.Shared {
		q.logger.Debug("resolution shared with concurrent caller", "identifier", identifier)
	}
	return res.Val.(string), nil
}
