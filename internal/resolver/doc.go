// Package resolver turns opaque contact identifiers into phone numbers.
//
// Inbound messages from linked devices carry identifiers like "123@lid"
// instead of a phone number. The webhook path calls Enqueue, which never
// blocks: a request is dropped if its session is inactive, if the same
// identifier is already pending, or if the queue is full.
//
// A fixed set of workers drains the queue. Each lookup checks the stored
// contact mapping first, then asks the gateway; concurrent lookups of one
// identifier are collapsed with singleflight. Successful results are saved
// and broadcast to viewers as "contact_resolved". Failures are logged and
// not retried.
//
// The call automation uses Resolve directly for its synchronous lookup.
package resolver
