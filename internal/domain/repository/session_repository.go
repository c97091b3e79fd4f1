package repository

import (
	"context"
	"time"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
)

// MaxSessionsPerUser is the number of most recent sessions kept per user.
const MaxSessionsPerUser = 5

// SessionRepository is the persistent session set. Operations scoped to one
// user are serialized with respect to each other; different users do not block.
type SessionRepository interface {
	// Create stores a session expiring at now+ttl and then deletes all but the
	// MaxSessionsPerUser newest sessions of the user, atomically.
	Create(ctx context.Context, userID, token string, ttl time.Duration) (*entity.Session, error)
	// FindByToken returns ErrNotFound when no session holds token.
	FindByToken(ctx context.Context, token string) (*entity.Session, error)
	// DeleteByToken is idempotent.
	DeleteByToken(ctx context.Context, token string) error
	// DeleteAllForUser deletes every session of the user except exceptToken (if non-empty).
	DeleteAllForUser(ctx context.Context, userID, exceptToken string) error
	// ListForUser returns the user's sessions, newest first.
	ListForUser(ctx context.Context, userID string) ([]*entity.Session, error)
	// DeleteExpired removes sessions whose expiry has passed and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
}
