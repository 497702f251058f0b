// Package worker runs detached background work on a bounded pool.
//
// Webhook handlers must answer quickly, so anything that sleeps or waits on
// the gateway (call follow-ups, identifier lookups) is submitted here instead
// of being run inline. Submit never blocks: a full queue or a closed pool
// returns false and the caller decides whether that matters.
//
// Task failures and panics are logged with the task name and a generated id.
// They never propagate and never stop the pool.
package worker
