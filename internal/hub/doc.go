// Package hub fans server-side events out to connected viewers.
//
// # Queues
//
// Each viewer id owns at most one bounded queue (100 events by default).
// The queue is created on first subscription and removed when any holder
// releases it; concurrent connections of one viewer share it, so removing
// it ends all of them. Events are ephemeral: a viewer with no queue simply
// misses them, and a full queue drops new events with a warning.
//
//	h := hub.New(logger)
//	h.Broadcast("new_message", map[string]any{"from": "5511@c.us"})
//
// # Streams
//
// Stream is the consumer loop behind the SSE and WebSocket endpoints. It
// writes a synthetic "connected" frame, then forwards events in FIFO order.
// If nothing arrives within the heartbeat interval (10s default) it writes a
// keep-alive so proxies neither reap the connection nor buffer output.
//
// # Locking
//
// One RWMutex guards the registry. Creation, removal and channel closure
// take the write lock; publishing and broadcast iteration take the read
// lock. Sends are non-blocking, so holding the read lock never waits on a
// slow viewer.
package hub
