// Package gwclient is the HTTP client for the messaging gateway.
//
// The gateway speaks the WPPConnect REST dialect: every call is scoped to a
// session under {base}/api/{session}/ and authenticated with that session's
// bearer token. Calls are rate limited client side so bursts of webhook
// traffic cannot flood the gateway.
//
// Each operation returns the raw payload and status code. Any 2xx answer is
// success; other codes come back as a *StatusError alongside the Response so
// callers can log the payload. Nothing in this package retries.
//
// The package also classifies contact identifiers:
//
//	IsOpaque("123@lid")        // true, needs resolution
//	IsGroup("123-456@g.us")    // true
//	PhoneFromJID("5511@c.us")  // "5511"
package gwclient
