package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMiddleware verifies token enforcement and the public paths.
func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", "/api/v1/passes/25544", "Bearer s3cret", http.StatusNoContent},
		{"lower-case scheme", "/api/v1/passes/25544", "bearer s3cret", http.StatusNoContent},
		{"wrong token", "/api/v1/passes/25544", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "/api/v1/passes/25544", "", http.StatusUnauthorized},
		{"basic scheme", "/api/v1/passes/25544", "Basic s3cret", http.StatusUnauthorized},
		{"scheme only", "/api/v1/passes/25544", "Bearer ", http.StatusUnauthorized},
		{"raw token", "/api/v1/passes/25544", "s3cret", http.StatusUnauthorized},
		{"health exempt", "/healthz", "", http.StatusNoContent},
		{"metrics exempt", "/metrics", "", http.StatusNoContent},
		{"catalog metadata exempt", "/api/v1/tle/metadata", "", http.StatusNoContent},
		{"elements exempt", "/api/v1/elements/25544", "", http.StatusNoContent},
		{"fetch protected", "/api/v1/tle/fetch", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

// TestMiddlewareDisabled verifies that a disabled config lets everything
// through.
func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tle/fetch", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
