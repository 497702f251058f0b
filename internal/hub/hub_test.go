// ABOUTME: Tests for the per-viewer event hub
// ABOUTME: Covers publish/broadcast semantics, capacity drops, FIFO order and teardown

package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []OutboundEvent {
	var out []OutboundEvent
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_PublishWithoutQueue(t *testing.T) {
	h := New(nil)
	defer h.Close()

	assert.False(t, h.Publish(42, "new_message", map[string]any{"from": "x"}))
	assert.Equal(t, 0, h.ViewerCount(), "publish must not create a queue")
}

func TestHub_PublishDelivers(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	h := New(nil, WithClock(func() time.Time { return fixed }))
	defer h.Close()

	sub := h.Subscribe(7)
	defer sub.Close()

	require.True(t, h.Publish(7, "message_ack", map[string]any{"id": "m1", "ack": 2}))

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, "message_ack", events[0].Type)
	assert.Equal(t, "m1", events[0].Data["id"])
	assert.Equal(t, fixed.Unix(), events[0].Timestamp)
}

func TestHub_NilDataBecomesEmptyObject(t *testing.T) {
	h := New(nil)
	defer h.Close()

	sub := h.Subscribe(1)
	defer sub.Close()

	require.True(t, h.Publish(1, "ping", nil))
	events := drain(sub)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].Data)
}

func TestHub_CapacityDropsNewest(t *testing.T) {
	h := New(nil)
	defer h.Close()

	sub := h.Subscribe(1)
	defer sub.Close()

	for i := range DefaultCapacity {
		require.True(t, h.Publish(1, "n", map[string]any{"i": i}), "publish %d", i)
	}
	assert.False(t, h.Publish(1, "n", map[string]any{"i": DefaultCapacity}))

	events := drain(sub)
	require.Len(t, events, DefaultCapacity)
	assert.Equal(t, 0, events[0].Data["i"])
	assert.Equal(t, DefaultCapacity-1, events[len(events)-1].Data["i"])
}

func TestHub_FIFO(t *testing.T) {
	h := New(nil, WithCapacity(10))
	defer h.Close()

	sub := h.Subscribe(3)
	defer sub.Close()

	for i := range 10 {
		require.True(t, h.Publish(3, "n", map[string]any{"i": i}))
	}
	events := drain(sub)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, i, ev.Data["i"])
	}
}

func TestHub_BroadcastSnapshot(t *testing.T) {
	h := New(nil, WithCapacity(1))
	defer h.Close()

	a := h.Subscribe(1)
	b := h.Subscribe(2)
	c := h.Subscribe(3)
	defer a.Close()
	defer b.Close()

	c.Close()

	// Fill viewer 2 so the broadcast drops for it
	require.True(t, h.Publish(2, "filler", nil))

	delivered := h.Broadcast("new_message", map[string]any{"from": "5511"})
	assert.Equal(t, 1, delivered)

	assert.Len(t, drain(a), 1)
	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, "filler", events[0].Type)
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := New(nil)
	defer h.Close()

	sub := h.Subscribe(9)
	h.Unsubscribe(9)
	h.Unsubscribe(9)
	h.Unsubscribe(12345)

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")
	assert.False(t, h.Publish(9, "x", nil))

	sub.Close()
	sub.Close()
}

func TestHub_SameViewerSharesQueue(t *testing.T) {
	h := New(nil)
	defer h.Close()

	first := h.Subscribe(5)
	second := h.Subscribe(5)
	assert.Equal(t, 1, h.ViewerCount())
	assert.Equal(t, first.Events(), second.Events())

	first.Close()
	assert.Equal(t, 0, h.ViewerCount())
	_, ok := <-second.Events()
	assert.False(t, ok)
	second.Close()
}

func TestHub_StaleCloseKeepsNewQueue(t *testing.T) {
	h := New(nil)
	defer h.Close()

	old := h.Subscribe(5)
	h.Unsubscribe(5)

	fresh := h.Subscribe(5)
	defer fresh.Close()

	old.Close()
	assert.Equal(t, 1, h.ViewerCount())
	assert.True(t, h.Publish(5, "x", nil))
}

func TestHub_CloseEndsEverything(t *testing.T) {
	h := New(nil)

	sub := h.Subscribe(1)
	h.Close()
	h.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := h.Subscribe(2)
	_, ok = <-late.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Broadcast("x", nil))
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := New(nil, WithCapacity(16))
	defer h.Close()

	var wg sync.WaitGroup
	for v := range 20 {
		wg.Add(1)
		go func(viewer int64) {
			defer wg.Done()
			for range 50 {
				sub := h.Subscribe(viewer)
				drain(sub)
				sub.Close()
			}
		}(int64(v))
	}
	for p := range 10 {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range 200 {
				h.Broadcast("tick", map[string]any{"p": p, "i": i})
				h.Publish(int64(i%20), "direct", nil)
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("concurrent access deadlocked with %d viewers", h.ViewerCount())
	}
}
