package application

import (
	"context"
	"strings"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID  string
	User    *entity.User
	Token   string
	Session *entity.Session
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
