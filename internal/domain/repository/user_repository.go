package repository

import (
	"context"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
)

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
}

// UserRepository defines the credential store. Implementations normalize
// emails with entity.NormalizeEmail before every lookup and write.
type UserRepository interface {
	// Create fills ID and timestamps; ErrDuplicateEmail if the normalized email exists.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
