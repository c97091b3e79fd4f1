// Package memory holds process-local repository drivers used for local
// development (STORE_DRIVER=memory) and as the backing store in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
)

type UserRepository struct {
	Now func() time.Time

	mu      sync.RWMutex
	byID    map[string]*entity.User
	byEmail map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		Now:     time.Now,
		byID:    make(map[string]*entity.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	email := entity.NormalizeEmail(u.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[email]; ok {
		return repository.ErrDuplicateEmail
	}
	now := r.Now().UTC()
	u.ID = uuid.NewString()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	r.byID[u.ID] = u.Clone()
	r.byEmail[email] = u.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[entity.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, id string, in repository.ProfileUpdate) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.AvatarURL != nil {
		u.AvatarURL = *in.AvatarURL
	}
	u.UpdatedAt = r.Now().UTC()
	return u.Clone(), nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Password = passwordHash
	u.UpdatedAt = r.Now().UTC()
	return nil
}

// SetActive flips the active flag. Deactivation happens outside the auth
// service; tests and the seed tooling use this to simulate it.
func (r *UserRepository) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = r.Now().UTC()
	return nil
}

// Delete removes a user outright; only used to simulate records vanishing.
func (r *UserRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)
