package middleware

import (
	"context"
	"net/http"

	"sanctuary/internal/auth"
	"sanctuary/internal/models"
)

// IdentityResolver resolves a bearer token to the user it was issued for.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

type AuthMiddleware struct {
	resolver IdentityResolver
}

func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// RequireAuth rejects the request with 401 unless it carries a bearer token
// for a user that still exists. The user is looked up on every request.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.BearerToken(r.Header.Get("Authorization"))
		user, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), user)))
	})
}

// OptionalAuth attaches the caller when a valid bearer token is present and
// otherwise lets the request through anonymously.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), user)))
	})
}

func withCaller(ctx context.Context, u *models.User) context.Context {
	noteUser(ctx, u.ID)
	return auth.WithUser(ctx, u)
}
