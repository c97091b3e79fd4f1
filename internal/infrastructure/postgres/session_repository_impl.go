package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
)

const sessionColumns = `id::text, user_id::text, token, expires_at, created_at`

// SessionRepository stores sessions in postgres. Operations that touch a
// user's whole session set run in a transaction holding a row lock on the
// owning users row, which serializes them per user.
type SessionRepository struct {
	pool  *pgxpool.Pool
	Now   func() time.Time
	Limit int
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool, Now: time.Now, Limit: repository.MaxSessionsPerUser}
}

func (r *SessionRepository) limit() int {
	if r.Limit <= 0 {
		return repository.MaxSessionsPerUser
	}
	return r.Limit
}

func scanSession(row pgx.Row) (*entity.Session, error) {
	s := &entity.Session{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	return mapErr(err)
}

func (r *SessionRepository) Create(ctx context.Context, userID, token string, ttl time.Duration) (*entity.Session, error) {
	now := r.Now().UTC()
	var s *entity.Session
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		s, err = scanSession(tx.QueryRow(ctx, `
			INSERT INTO sessions (user_id, token, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+sessionColumns, userID, token, now.Add(ttl), now))
		if err != nil {
			return err
		}
		// the new session always survives; keep the Limit-1 newest others
		_, err = tx.Exec(ctx, `
			DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				WHERE user_id = $1 AND id <> $3
				ORDER BY created_at DESC, id DESC
				OFFSET $2
			)
		`, userID, r.limit()-1, s.ID)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, "sessions_token_key") {
			return nil, repository.ErrDuplicateToken
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*entity.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token))
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID, exceptToken string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			DELETE FROM sessions WHERE user_id = $1 AND ($2 = '' OR token <> $2)
		`, userID, exceptToken)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		// no such user, so no sessions either
		return nil
	}
	return err
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]*entity.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		if errors.Is(mapErr(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(mapErr(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
