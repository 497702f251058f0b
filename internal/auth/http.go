// ABOUTME: HTTP middleware authenticating viewers on API endpoints
// ABOUTME: Accepts a Bearer header or ?token= query (EventSource cannot set headers)

package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken prefers the Authorization header and falls back to ?token=.
func requestToken(r *http.Request) (string, string) {
	if header := r.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing authorization header"
}

// HTTPAuthMiddleware authenticates viewers and stores the viewer id in the
// request context. With a nil verifier authentication is disabled and the
// viewer id is read from ?viewer= instead.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	if verifier == nil {
		logger.Warn("viewer authentication disabled, trusting ?viewer= query parameter")
		return insecureViewerMiddleware
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := requestToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			viewerID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected viewer token", "error", err, "path", r.URL.Path)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewerID)))
		})
	}
}

func insecureViewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("viewer")
		viewerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || viewerID <= 0 {
			http.Error(w, `{"error":"viewer query parameter required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewerID)))
	})
}
