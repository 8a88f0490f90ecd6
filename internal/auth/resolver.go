package auth

import (
	"context"
	"strings"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

// ErrCredentials is the only authentication failure callers ever see. Bad
// tokens and tokens whose user is gone are indistinguishable.
var ErrCredentials = apperr.Authentication("could not validate credentials")

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Resolver turns a bearer token into a live user record.
type Resolver struct {
	tokens *TokenAuthority
	users  UserLookup
}

func NewResolver(tokens *TokenAuthority, users UserLookup) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrCredentials
	}
	subject, err := r.tokens.Validate(token)
	if err != nil {
		return nil, ErrCredentials.Wrap(err)
	}
	user, err := r.users.GetByEmail(ctx, subject)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, ErrCredentials.Wrap(err)
		}
		return nil, err
	}
	return user, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the caller resolved for this request, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.User)
	return u, ok && u != nil
}
