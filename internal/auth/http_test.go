// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers header and query tokens, rejection paths and development mode

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func viewerHandler(t *testing.T, got *int64) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ViewerFromContext(r.Context())
		if !ok {
			t.Error("expected viewer in context")
		}
		*got = id
		w.WriteHeader(http.StatusOK)
	})
}

func rejectHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})
}

func TestHTTPAuthMiddleware_BearerHeader(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, _ := verifier.Generate(12, time.Hour)

	var got int64
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(viewerHandler(t, &got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got != 12 {
		t.Errorf("expected viewer 12, got %d", got)
	}
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, _ := verifier.Generate(5, time.Hour)

	var got int64
	req := httptest.NewRequest(http.MethodGet, "/api/events?token="+token, nil)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(viewerHandler(t, &got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got != 5 {
		t.Errorf("expected viewer 5, got %d", got)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	expired, _ := verifier.Generate(5, -time.Hour)

	tests := []struct {
		name   string
		header string
		query  string
	}{
		{name: "missing", header: "", query: ""},
		{name: "wrong scheme", header: "Basic abc", query: ""},
		{name: "empty bearer", header: "Bearer ", query: ""},
		{name: "invalid token", header: "Bearer invalid-token", query: ""},
		{name: "expired token", header: "Bearer " + expired, query: ""},
		{name: "invalid query token", header: "", query: "?token=garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/events"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(verifier, nil)(rejectHandler(t)).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
		})
	}
}

func TestHTTPAuthMiddleware_DevelopmentMode(t *testing.T) {
	var got int64
	req := httptest.NewRequest(http.MethodGet, "/api/events?viewer=77", nil)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(nil, nil)(viewerHandler(t, &got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got != 77 {
		t.Errorf("expected viewer 77, got %d", got)
	}

	for _, q := range []string{"", "?viewer=abc", "?viewer=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/events"+q, nil)
		rec := httptest.NewRecorder()
		HTTPAuthMiddleware(nil, nil)(rejectHandler(t)).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected status 401, got %d", q, rec.Code)
		}
	}
}
