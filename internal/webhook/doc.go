// Package webhook turns gateway webhook calls into typed events and routes
// them.
//
// Parse is the boundary check: the body must be a JSON object with a
// non-empty "session", otherwise ErrMalformedPayload or ErrMissingSession is
// returned and the HTTP layer answers 400. The "event" name is classified
// into an EventKind (unknown names become Unrecognized, never an error) and
// the payload is decoded into the matching variant. Variant fields are
// lenient: identifiers may be strings or wid objects, flags may be 0/1 or
// quoted. A field that still cannot be read is left zero, the event carries
// DecodeErr, and it is dispatched anyway.
//
// Dispatch runs one handler per event:
//
//	status-find (closed)   deactivate session
//	session-disconnected   deactivate session
//	onmessage              enqueue opaque sender, broadcast new_message
//	onack                  broadcast message_ack
//	onselfmessage          broadcast message_sent
//	incomingcall           call automation
//
// Broadcasts are fire-and-forget; a missing or full viewer queue never fails
// the webhook.
package webhook
