package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
)

// userSessions is one user's session set, newest first. Its mutex is the
// per-user critical section.
type userSessions struct {
	mu       sync.Mutex
	sessions []*entity.Session
}

// SessionRepository keeps sessions in memory. Lock order is always
// userSessions.mu before SessionRepository.mu.
type SessionRepository struct {
	Now   func() time.Time
	Limit int

	mu     sync.RWMutex
	users  map[string]*userSessions
	tokens map[string]string // token -> user id
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		Now:    time.Now,
		Limit:  repository.MaxSessionsPerUser,
		users:  make(map[string]*userSessions),
		tokens: make(map[string]string),
	}
}

func (r *SessionRepository) bucket(userID string) *userSessions {
	r.mu.RLock()
	b, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.users[userID]; !ok {
		b = &userSessions{}
		r.users[userID] = b
	}
	return b
}

func (r *SessionRepository) owner(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.tokens[token]
	return uid, ok
}

func (r *SessionRepository) Create(_ context.Context, userID, token string, ttl time.Duration) (*entity.Session, error) {
	b := r.bucket(userID)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := r.Now().UTC()
	s := &entity.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.tokens[token]; taken {
		return nil, repository.ErrDuplicateToken
	}

	b.sessions = append([]*entity.Session{s}, b.sessions...)
	r.tokens[token] = userID

	if limit := r.limit(); len(b.sessions) > limit {
		for _, old := range b.sessions[limit:] {
			delete(r.tokens, old.Token)
		}
		b.sessions = b.sessions[:limit:limit]
	}
	return s.Clone(), nil
}

func (r *SessionRepository) limit() int {
	if r.Limit <= 0 {
		return repository.MaxSessionsPerUser
	}
	return r.Limit
}

func (r *SessionRepository) FindByToken(_ context.Context, token string) (*entity.Session, error) {
	uid, ok := r.owner(token)
	if !ok {
		return nil, repository.ErrNotFound
	}
	b := r.bucket(uid)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if s.Token == token {
			return s.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *SessionRepository) DeleteByToken(_ context.Context, token string) error {
	uid, ok := r.owner(token)
	if !ok {
		return nil
	}
	b := r.bucket(uid)
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.sessions[:0]
	for _, s := range b.sessions {
		if s.Token != token {
			kept = append(kept, s)
		}
	}
	b.sessions = kept

	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()
	return nil
}

func (r *SessionRepository) DeleteAllForUser(_ context.Context, userID, exceptToken string) error {
	b := r.bucket(userID)
	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []*entity.Session
	r.mu.Lock()
	for _, s := range b.sessions {
		if exceptToken != "" && s.Token == exceptToken {
			kept = append(kept, s)
			continue
		}
		delete(r.tokens, s.Token)
	}
	r.mu.Unlock()
	b.sessions = kept
	return nil
}

func (r *SessionRepository) ListForUser(_ context.Context, userID string) ([]*entity.Session, error) {
	b := r.bucket(userID)
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*entity.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.RLock()
	buckets := make([]*userSessions, 0, len(r.users))
	for _, b := range r.users {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	now := r.Now()
	var deleted int64
	for _, b := range buckets {
		b.mu.Lock()
		kept := b.sessions[:0]
		r.mu.Lock()
		for _, s := range b.sessions {
			if s.ValidAt(now) {
				kept = append(kept, s)
				continue
			}
			delete(r.tokens, s.Token)
			deleted++
		}
		r.mu.Unlock()
		b.sessions = kept
		b.mu.Unlock()
	}
	return deleted, nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
