// Package callflow automates the response to incoming voice calls.
//
// Each call runs a small state machine:
//
//	Received -> Rejected -> Done                                  (group calls)
//	Received -> Rejected -> PendingMessage -> MessageSent
//	         -> PendingUnread -> Done
//
// with terminal AbortedNoSession (no active session), AbortedUnresolved (an
// opaque caller could not be mapped to a phone number) and GateClosed
// (rejection disabled or outside the session's reject window).
//
// Handle looks up the session, checks the gate and rejects the call inline.
// The rest is paced on purpose (2s before the message, 10s before marking
// the chat unread) and is submitted to the worker pool so the webhook can
// answer immediately. Gateway failures in any step are logged and the
// sequence moves on.
package callflow
