package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sanctuary/internal/apperr"
	"sanctuary/internal/auth"
	"sanctuary/internal/models"
)

type stubResolver struct {
	users map[string]*models.User
	calls int
}

func (s *stubResolver) Resolve(_ context.Context, token string) (*models.User, error) {
	s.calls++
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, auth.ErrCredentials
}

func callerEcho(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(u.Email))
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Detail
}

func TestRequireAuth(t *testing.T) {
	resolver := &stubResolver{users: map[string]*models.User{"good": {ID: "u1", Email: "a@x.com"}}}
	h := NewAuthMiddleware(resolver).RequireAuth(http.HandlerFunc(callerEcho))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer good", http.StatusOK, "a@x.com"},
		{"lowercase scheme", "bearer good", http.StatusOK, "a@x.com"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "could not validate credentials", decodeDetail(t, rec))
		})
	}
}

func TestRequireAuth_ResolvesEveryRequest(t *testing.T) {
	resolver := &stubResolver{users: map[string]*models.User{"good": {ID: "u1", Email: "a@x.com"}}}
	h := NewAuthMiddleware(resolver).RequireAuth(http.HandlerFunc(callerEcho))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 3, resolver.calls)

	delete(resolver.users, "good")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	resolver := &stubResolver{users: map[string]*models.User{"good": {ID: "u1", Email: "a@x.com"}}}
	h := NewAuthMiddleware(resolver).OptionalAuth(http.HandlerFunc(callerEcho))

	for header, want := range map[string]string{
		"":            "anonymous",
		"Bearer bad":  "anonymous",
		"Bearer good": "a@x.com",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/checkout/session", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Body.String(), header)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{apperr.Validation("Invalid signature"), http.StatusBadRequest, "Invalid signature"},
		{apperr.NotFound("Journal entry not found"), http.StatusNotFound, "Journal entry not found"},
		{apperr.Conflict("Email already registered"), http.StatusConflict, "Email already registered"},
		{apperr.Unavailable("Payment processing not configured"), http.StatusServiceUnavailable, "Payment processing not configured"},
		{apperr.Dependency("Unable to create checkout session", errors.New("secret detail")), http.StatusInternalServerError, "Unable to create checkout session"},
		{apperr.Internal("could not fetch", errors.New("pq: relation missing")), http.StatusInternalServerError, "internal server error"},
		{errors.New("raw"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, tt.detail, decodeDetail(t, rec))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5001").Code)

	limited := do("10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "30", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:5000").Code, "other clients are unaffected")
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, nil)
	defer rl.Stop()

	rl.get("10.0.0.1")
	rl.cleanup(rl.clients["10.0.0.1"].lastAccess.Add(3 * rl.cleanupInterval))
	assert.Equal(t, 0, rl.ClientCount())
}

func TestZapRequestLogger_NamesCaller(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	resolver := &stubResolver{users: map[string]*models.User{"good": {ID: "u1", Email: "a@x.com"}}}

	h := ZapRequestLogger(zap.New(core))(NewAuthMiddleware(resolver).RequireAuth(http.HandlerFunc(callerEcho)))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "request completed", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "/api/auth/me", fields["path"])
}
