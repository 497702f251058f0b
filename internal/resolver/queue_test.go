// ABOUTME: Tests for the identifier resolution queue
// ABOUTME: Covers session gating, dedup, overflow, workers, cached and shared lookups

package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/store"
)

type fakeGateway struct {
	mu     sync.Mutex
	calls  []string
	phones map[string]string
	err    error
}

func (f *fakeGateway) ResolveIdentifier(ctx context.Context, auth gwclient.Auth, identifier string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auth.Session+"|"+auth.Token+"|"+identifier)
	if f.err != nil {
		return "", f.err
	}
	phone, ok := f.phones[identifier]
	if !ok {
		return "", gwclient.ErrUnresolved
	}
	return phone, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []map[string]any
	kinds  []string
	notify chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{notify: make(chan struct{}, 16)}
}

func (p *fakePublisher) Broadcast(kind string, data map[string]any) int {
	p.mu.Lock()
	p.kinds = append(p.kinds, kind)
	p.events = append(p.events, data)
	p.mu.Unlock()
	p.notify <- struct{}{}
	return 1
}

// blockingGateway holds each lookup until release is closed or the lookup's
// context ends.
type blockingGateway struct {
	started chan context.Context
	release chan struct{}
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		started: make(chan context.Context, 8),
		release: make(chan struct{}),
	}
}

func (g *blockingGateway) ResolveIdentifier(ctx context.Context, auth gwclient.Auth, identifier string) (string, error) {
	g.started <- ctx
	select {
	case <-g.release:
		return "5511999990000", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func waitStarted(t *testing.T, g *blockingGateway) context.Context {
	t.Helper()
	select {
	case ctx := <-g.started:
		return ctx
	case <-time.After(2 * time.Second):
		t.Fatal("gateway lookup never started")
		return nil
	}
}

func setup(t *testing.T, cfg Config) (*Queue, *store.MockStore, *fakeGateway, *fakePublisher) {
	t.Helper()
	st := seededStore(t)
	gw := &fakeGateway{phones: map[string]string{"123@lid": "5511999990000"}}
	pub := newFakePublisher()
	q := New(cfg, st, st, gw, pub, nil)
	return q, st, gw, pub
}

func seededStore(t *testing.T) *store.MockStore {
	t.Helper()
	st := store.NewMockStore()
	require.NoError(t, st.UpsertSession(t.Context(), &store.Session{
		Name:     "shop-1",
		Token:    "tok",
		IsActive: true,
	}))
	require.NoError(t, st.UpsertSession(t.Context(), &store.Session{
		Name:     "old",
		IsActive: false,
	}))
	return st
}

func TestQueue_EnqueueRequiresActiveSession(t *testing.T) {
	q, _, _, _ := setup(t, Config{QueueSize: 4})

	assert.False(t, q.Enqueue(t.Context(), "123@lid", "old"))
	assert.False(t, q.Enqueue(t.Context(), "123@lid", "missing"))
	assert.Equal(t, 0, q.Pending())
}

func TestQueue_EnqueueDeduplicates(t *testing.T) {
	q, _, _, _ := setup(t, Config{QueueSize: 4})

	assert.True(t, q.Enqueue(t.Context(), "123@lid", "shop-1"))
	assert.False(t, q.Enqueue(t.Context(), "123@lid", "shop-1"))
	assert.True(t, q.Enqueue(t.Context(), "456@lid", "shop-1"))
	assert.Equal(t, 2, q.Pending())
}

func TestQueue_EnqueueDropsWhenFull(t *testing.T) {
	q, _, _, _ := setup(t, Config{QueueSize: 1})

	assert.True(t, q.Enqueue(t.Context(), "1@lid", "shop-1"))
	assert.False(t, q.Enqueue(t.Context(), "2@lid", "shop-1"))
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_EnqueueKeepsPendingKeysWhenSaturated(t *testing.T) {
	st := seededStore(t)
	gw := newBlockingGateway()
	defer close(gw.release)
	q := New(Config{Workers: 1, QueueSize: 1}, st, st, gw, newFakePublisher(), nil)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	require.True(t, q.Enqueue(t.Context(), "1@lid", "shop-1"))
	waitStarted(t, gw)
	require.True(t, q.Enqueue(t.Context(), "2@lid", "shop-1"))

	// one in process, one queued: a third key is refused
	assert.False(t, q.Enqueue(t.Context(), "3@lid", "shop-1"))
	assert.Equal(t, 2, q.inflight.Len())

	// the outstanding keys were not dropped to make room
	assert.ErrorIs(t, q.inflight.Acquire("shop-1:1@lid"), errAlreadyPending)
	assert.ErrorIs(t, q.inflight.Acquire("shop-1:2@lid"), errAlreadyPending)
	assert.False(t, q.Enqueue(t.Context(), "1@lid", "shop-1"))
	assert.False(t, q.Enqueue(t.Context(), "2@lid", "shop-1"))
}

func TestQueue_EnqueueStoreError(t *testing.T) {
	q, st, _, _ := setup(t, Config{QueueSize: 1})
	st.Err = errors.New("db down")

	assert.False(t, q.Enqueue(t.Context(), "1@lid", "shop-1"))
}

func TestQueue_RunResolvesSavesAndBroadcasts(t *testing.T) {
	q, st, gw, pub := setup(t, Config{Workers: 2, QueueSize: 4})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.True(t, q.Enqueue(t.Context(), "123@lid", "shop-1"))

	select {
	case <-pub.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast after resolution")
	}

	pub.mu.Lock()
	assert.Equal(t, []string{EventContactResolved}, pub.kinds)
	assert.Equal(t, "5511999990000", pub.events[0]["phone"])
	assert.Equal(t, "123@lid", pub.events[0]["identifier"])
	assert.Equal(t, "shop-1", pub.events[0]["session"])
	pub.mu.Unlock()

	mapping, err := st.GetContact(t.Context(), "shop-1", "123@lid")
	require.NoError(t, err)
	assert.Equal(t, "5511999990000", mapping.Phone)
	gw.mu.Lock()
	assert.Equal(t, []string{"shop-1|tok|123@lid"}, gw.calls)
	gw.mu.Unlock()

	// The pending mark is released once the worker is done
	assert.Eventually(t, func() bool { return q.inflight.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestQueue_FailedResolutionIsNotBroadcast(t *testing.T) {
	q, st, gw, pub := setup(t, Config{Workers: 1, QueueSize: 4})
	gw.err = errors.New("gateway unavailable")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	require.True(t, q.Enqueue(t.Context(), "123@lid", "shop-1"))
	assert.Eventually(t, func() bool { return gw.callCount() == 1 && q.inflight.Len() == 0 },
		2*time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	assert.Empty(t, pub.kinds)
	pub.mu.Unlock()

	_, err := st.GetContact(t.Context(), "shop-1", "123@lid")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Not retried automatically, but may be enqueued again
	assert.True(t, q.Enqueue(t.Context(), "123@lid", "shop-1"))
}

func TestQueue_ResolveUsesStoredMapping(t *testing.T) {
	q, st, gw, _ := setup(t, Config{})
	require.NoError(t, st.SaveContact(t.Context(), &store.ContactMapping{
		SessionName: "shop-1",
		Identifier:  "999@lid",
		Phone:       "5511000000000",
	}))

	sess, err := st.GetActiveSession(t.Context(), "shop-1")
	require.NoError(t, err)

	phone, err := q.Resolve(t.Context(), sess, "999@lid")
	require.NoError(t, err)
	assert.Equal(t, "5511000000000", phone)
	assert.Equal(t, 0, gw.callCount())
}

func TestQueue_ResolveUnknown(t *testing.T) {
	q, st, _, _ := setup(t, Config{})
	sess, err := st.GetActiveSession(t.Context(), "shop-1")
	require.NoError(t, err)

	_, err = q.Resolve(t.Context(), sess, "000@lid")
	require.ErrorIs(t, err, gwclient.ErrUnresolved)
}

func TestQueue_ResolveCallerCancelDoesNotFailSharedLookup(t *testing.T) {
	st := seededStore(t)
	gw := newBlockingGateway()
	q := New(Config{}, st, st, gw, newFakePublisher(), nil)
	sess, err := st.GetActiveSession(t.Context(), "shop-1")
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := q.Resolve(firstCtx, sess, "123@lid")
		firstErr <- err
	}()
	lookupCtx := waitStarted(t, gw)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}
	assert.NoError(t, lookupCtx.Err(), "shared lookup must outlive the caller that started it")

	type result struct {
		phone string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		phone, err := q.Resolve(t.Context(), sess, "123@lid")
		second <- result{phone, err}
	}()
	close(gw.release)

	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, "5511999990000", r.phone)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	assert.Eventually(t, func() bool {
		m, err := st.GetContact(t.Context(), "shop-1", "123@lid")
		return err == nil && m.Phone == "5511999990000"
	}, time.Second, 5*time.Millisecond)
}
