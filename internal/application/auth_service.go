package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	repo "github.com/oksasatya/turbo-auth/internal/domain/repository"
)

// Password bounds. The upper one is in bytes since bcrypt refuses longer input.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// fallbackDummyHash is a cost 10 bcrypt hash used for unknown-email logins
// while the service cannot produce its own.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher is satisfied by helpers.PasswordHasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// TokenSigner is satisfied by helpers.JWTManager.
type TokenSigner interface {
	Issue(userID string) (string, time.Time, error)
	Verify(token string) (string, bool)
}

type Service struct {
	Users      repo.UserRepository
	Sessions   repo.SessionRepository
	Hasher     PasswordHasher
	Tokens     TokenSigner
	Logger     logrus.FieldLogger
	SessionTTL time.Duration

	// optional collaborators
	Events  EventPublisher
	Avatars AvatarUploader

	// Now is the clock used for session validity checks.
	Now func() time.Time

	validate  *validator.Validate
	dummyMu   sync.Mutex
	dummyHash string
}

func NewService(users repo.UserRepository, sessions repo.SessionRepository, hasher PasswordHasher, tokens TokenSigner, logger logrus.FieldLogger, sessionTTL time.Duration) *Service {
	return &Service{
		Users:      users,
		Sessions:   sessions,
		Hasher:     hasher,
		Tokens:     tokens,
		Logger:     logger,
		SessionTTL: sessionTTL,
		Now:        time.Now,
		validate:   validator.New(),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

type UpdateProfileInput struct {
	Name      *string
	AvatarURL *string
}

// SessionInfo describes one of the caller's sessions without its token.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Current   bool
}

func (s *Service) checkVar(field string, value any, tag, msg string) error {
	if err := s.validate.Var(value, tag); err != nil {
		return invalid(field, msg)
	}
	return nil
}

func (s *Service) checkEmail(email string) error {
	return s.checkVar("email", email, "required,email,max=254", "must be a valid email")
}

func (s *Service) checkNewPassword(field, pw string) error {
	msg := fmt.Sprintf("must be at least %d characters and at most %d bytes long", MinPasswordLength, MaxPasswordBytes)
	if len(pw) > MaxPasswordBytes {
		return invalid(field, msg)
	}
	return s.checkVar(field, pw, fmt.Sprintf("required,min=%d", MinPasswordLength), msg)
}

func (s *Service) hash(plain string) (string, error) {
	h, err := s.Hasher.Hash(plain)
	if err != nil {
		s.Logger.WithError(err).Error("password hashing failed")
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return h, nil
}

// issueSession signs a token for u and records its session. Session creation
// prunes the user's older sessions beyond the per-user cap.
func (s *Service) issueSession(ctx context.Context, u *entity.User) (*AuthResult, error) {
	token, exp, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	ttl := s.SessionTTL
	if ttl <= 0 || s.now().Add(ttl).After(exp) {
		ttl = exp.Sub(s.now())
	}
	sess, err := s.Sessions.Create(ctx, u.ID, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// Signup registers a user with role "user" and opens their first session.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := entity.NormalizeEmail(in.Email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if err := s.checkNewPassword("password", in.Password); err != nil {
		return nil, err
	}
	if err := s.checkVar("name", in.Name, "max=100", "must be at most 100 characters long"); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Email:    email,
		Password: hash,
		Name:     in.Name,
		Role:     entity.RoleUser,
		IsActive: true,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	res, err := s.issueSession(ctx, u)
	if err != nil {
		// The account stays; the user can log in to get a session.
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("user created but session could not be opened")
		return nil, err
	}
	s.Logger.WithField("user_id", u.ID).Info("user signed up")
	s.publish(ctx, AuthEvent{Type: EventSignup, UserID: u.ID, Email: u.Email})
	return res, nil
}

// dummy returns a hash compared against when the email is unknown, so a
// missing account costs the same bcrypt work as a wrong password.
// A failed hash is not cached; the next call tries again.
func (s *Service) dummy() string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		h, err := s.Hasher.Hash("not-a-real-password")
		if err != nil {
			s.Logger.WithError(err).Warn("dummy hash unavailable, using fallback")
			return fallbackDummyHash
		}
		s.dummyHash = h
	}
	return s.dummyHash
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = entity.NormalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if err := s.checkVar("password", password, "required", "is required"); err != nil {
		return nil, err
	}

	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.Hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.Hasher.Verify(password, u.Password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountInactive
	}

	res, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, AuthEvent{Type: EventLogin, UserID: u.ID, Email: u.Email})
	return res, nil
}

// Authenticate resolves the caller behind an Authorization header value.
// Checks run in order: header shape, token signature and expiry, session
// presence and expiry, account active flag.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}
	uid, ok := s.Tokens.Verify(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	sess, err := s.Sessions.FindByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !sess.ValidAt(s.now()) {
		return nil, ErrSessionExpired
	}
	if sess.UserID != uid {
		return nil, ErrInvalidToken
	}

	u, err := s.Users.GetByID(ctx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrAccountInactive
	}
	return &Identity{UserID: uid, User: u, Token: token, Session: sess}, nil
}

// AuthenticateOptional is Authenticate with every failure swallowed.
func (s *Service) AuthenticateOptional(ctx context.Context, authorization string) *Identity {
	if authorization == "" {
		return nil
	}
	id, err := s.Authenticate(ctx, authorization)
	if err != nil {
		s.Logger.WithError(err).Debug("optional authentication skipped")
		return nil
	}
	return id
}

func (s *Service) GetSelf(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// Logout revokes the session behind token. Revoking an already deleted session succeeds.
func (s *Service) Logout(ctx context.Context, userID, token string) error {
	if err := s.Sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.publish(ctx, AuthEvent{Type: EventLogout, UserID: userID})
	return nil
}

// LogoutAll revokes every session of the user, including the current one.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.Sessions.DeleteAllForUser(ctx, userID, ""); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	s.Logger.WithField("user_id", userID).Info("all sessions revoked")
	s.publish(ctx, AuthEvent{Type: EventLogoutAll, UserID: userID})
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*entity.User, error) {
	if in.Name != nil {
		if err := s.checkVar("name", *in.Name, "max=100", "must be at most 100 characters long"); err != nil {
			return nil, err
		}
	}
	if in.AvatarURL != nil && *in.AvatarURL != "" {
		if err := s.checkVar("avatar_url", *in.AvatarURL, "url,max=2048", "must be a valid URL"); err != nil {
			return nil, err
		}
	}
	u, err := s.Users.UpdateProfile(ctx, userID, repo.ProfileUpdate{Name: in.Name, AvatarURL: in.AvatarURL})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.publish(ctx, AuthEvent{Type: EventProfileUpdated, UserID: userID})
	return u, nil
}

// ChangePassword replaces the password and revokes every other session of
// the user; the session identified by currentToken survives.
func (s *Service) ChangePassword(ctx context.Context, userID, currentToken, currentPassword, newPassword string) error {
	if err := s.checkVar("current_password", currentPassword, "required", "is required"); err != nil {
		return err
	}
	if err := s.checkNewPassword("new_password", newPassword); err != nil {
		return err
	}

	u, err := s.GetSelf(ctx, userID)
	if err != nil {
		return err
	}
	if !s.Hasher.Verify(currentPassword, u.Password) {
		return ErrInvalidCredentials
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.Sessions.DeleteAllForUser(ctx, userID, currentToken); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.Logger.WithField("user_id", userID).Info("password changed, other sessions revoked")
	s.publish(ctx, AuthEvent{Type: EventPasswordChanged, UserID: userID, Email: u.Email})
	return nil
}

// ListSessions returns the caller's unexpired sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID, currentToken string) ([]SessionInfo, error) {
	list, err := s.Sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.now()
	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		if !sess.ValidAt(now) {
			continue
		}
		out = append(out, SessionInfo{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			Current:   sess.Token == currentToken,
		})
	}
	return out, nil
}
