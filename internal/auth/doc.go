// Package auth authenticates viewers of the live event stream and the chat
// proxy API.
//
// # Tokens
//
// Viewers present an HS256 JWT signed with the configured auth.jwt_secret.
// The "sub" claim is the integer viewer id:
//
//	v := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate(42, 24*time.Hour)
//	id, err := v.Verify(token) // 42
//
// # HTTP
//
// HTTPAuthMiddleware reads the token from "Authorization: Bearer ..." or,
// because browser EventSource cannot set headers, from ?token=. The viewer id
// lands in the request context (ViewerFromContext).
//
// Without a jwt_secret the middleware runs in development mode: it trusts
// ?viewer=<id> and logs a warning at startup.
package auth
