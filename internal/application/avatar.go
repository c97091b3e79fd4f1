package application

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
)

// AvatarUploader stores an object and returns its public URL.
// helpers.GCSUploader is the production implementation.
type AvatarUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

var avatarExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// UploadAvatar stores an image and records its URL as the user's avatar.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (*entity.User, error) {
	if s.Avatars == nil {
		return nil, ErrAvatarUnavailable
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !avatarExtensions[ext] {
		return nil, invalid("avatar", "must be a png, jpeg, gif or webp image")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, invalid("avatar", "must be an image")
	}
	if _, err := s.GetSelf(ctx, userID); err != nil {
		return nil, err
	}

	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := s.Avatars.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Error("avatar upload failed")
		return nil, err
	}
	return s.UpdateProfile(ctx, userID, UpdateProfileInput{AvatarURL: &url})
}
