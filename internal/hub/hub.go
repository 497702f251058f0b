// ABOUTME: In-memory per-viewer event hub feeding live push streams
// ABOUTME: Bounded queues per viewer, non-blocking publish, heartbeat-driven stream loop

package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCapacity is the per-viewer queue bound.
	DefaultCapacity = 100

	// DefaultHeartbeat is how long a stream waits for an event before
	// emitting a keep-alive.
	DefaultHeartbeat = 10 * time.Second
)

// ErrStreamClosed is returned by Stream when the viewer's queue was removed
// underneath it (another connection of the same viewer unsubscribed, or the
// hub was closed).
var ErrStreamClosed = errors.New("event stream closed")

// OutboundEvent is one frame delivered to a viewer.
type OutboundEvent struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

type viewerQueue struct {
	id string
	ch chan OutboundEvent
}

// Hub routes events to per-viewer queues. The registry lock guards both the
// map and channel closure, so a publish never races a close.
type Hub struct {
	mu     sync.RWMutex
	queues map[int64]*viewerQueue
	closed bool

	capacity  int
	heartbeat time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity sets the per-viewer queue bound.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithHeartbeat sets the idle interval after which streams emit a keep-alive.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a Hub. Pass nil logger for default.
func New(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		queues:    make(map[int64]*viewerQueue),
		capacity:  DefaultCapacity,
		heartbeat: DefaultHeartbeat,
		now:       time.Now,
		logger:    logger.With("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is a scoped hold on a viewer's queue. Close releases it.
type Subscription struct {
	ViewerID int64

	hub   *Hub
	queue *viewerQueue
	once  sync.Once
}

// Events returns the channel of queued events. It is closed when the queue
// is removed.
func (s *Subscription) Events() <-chan OutboundEvent {
	return s.queue.ch
}

// Close removes the viewer's queue if it is still the one this subscription
// acquired. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.release(s.ViewerID, s.queue)
	})
}

// Subscribe returns a subscription on the viewer's queue, creating the queue
// if absent. Concurrent subscriptions of the same viewer share one queue.
func (h *Hub) Subscribe(viewerID int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		q := &viewerQueue{ch: make(chan OutboundEvent)}
		close(q.ch)
		return &Subscription{ViewerID: viewerID, hub: h, queue: q}
	}

	q, ok := h.queues[viewerID]
	if !ok {
		q = &viewerQueue{
			id: uuid.New().String(),
			ch: make(chan OutboundEvent, h.capacity),
		}
		h.queues[viewerID] = q
		h.logger.Debug("viewer queue created", "viewer_id", viewerID, "queue_id", q.id)
	}
	return &Subscription{ViewerID: viewerID, hub: h, queue: q}
}

// Unsubscribe removes and discards the viewer's queue. No-op if absent.
func (h *Hub) Unsubscribe(viewerID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[viewerID]
	if !ok {
		return
	}
	delete(h.queues, viewerID)
	close(q.ch)
	h.logger.Debug("viewer queue removed", "viewer_id", viewerID, "queue_id", q.id)
}

func (h *Hub) release(viewerID int64, q *viewerQueue) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.queues[viewerID]; !ok || current != q {
		return
	}
	delete(h.queues, viewerID)
	close(q.ch)
	h.logger.Debug("viewer queue removed", "viewer_id", viewerID, "queue_id", q.id)
}

// Publish enqueues an event for one viewer without blocking. It returns
// false when the viewer has no queue or the queue is full.
func (h *Hub) Publish(viewerID int64, kind string, data map[string]any) bool {
	ev := h.newEvent(kind, data)

	h.mu.RLock()
	defer h.mu.RUnlock()

	q, ok := h.queues[viewerID]
	if !ok {
		return false
	}
	return h.offer(viewerID, q, ev)
}

// Broadcast publishes to every viewer registered at call time and returns
// how many accepted the event.
func (h *Hub) Broadcast(kind string, data map[string]any) int {
	ev := h.newEvent(kind, data)

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for viewerID, q := range h.queues {
		if h.offer(viewerID, q, ev) {
			delivered++
		}
	}
	return delivered
}

// offer must be called with mu held for reading.
func (h *Hub) offer(viewerID int64, q *viewerQueue, ev OutboundEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		h.logger.Warn("dropped event for slow viewer",
			"viewer_id", viewerID,
			"type", ev.Type,
			"capacity", cap(q.ch))
		return false
	}
}

// ViewerCount returns the number of viewers with a live queue.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.queues)
}

// Close removes every queue, ending all streams. Later subscriptions get a
// closed queue.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for viewerID, q := range h.queues {
		close(q.ch)
		delete(h.queues, viewerID)
	}
	h.logger.Debug("hub closed")
}

func (h *Hub) newEvent(kind string, data map[string]any) OutboundEvent {
	if data == nil {
		data = map[string]any{}
	}
	return OutboundEvent{Type: kind, Data: data, Timestamp: h.now().Unix()}
}
