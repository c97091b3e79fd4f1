// Package redisstore keeps sessions in redis. Each session is a hash under
// session:<token> with a TTL; user:sessions:<user id> is a sorted set of the
// user's tokens scored by creation time (microseconds).
//
// A session key and its user's index never share a hash slot, so the scripts
// here need a standalone or sentinel-managed redis, not Redis Cluster.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
)

const (
	sessionKeyPrefix = "session:"
	userSetPrefix    = "user:sessions:"
)

func sessionKey(token string) string { return sessionKeyPrefix + token }
func userSetKey(uid string) string   { return userSetPrefix + uid }

// createScript inserts a session and prunes the user's set in one atomic step.
// Index entries whose session hash already expired are dropped before counting.
// The new token is never a prune candidate, even when scores tie.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "user_id", ARGV[2], "expires_at", ARGV[3], "created_at", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("ZADD", KEYS[2], ARGV[6], ARGV[7])
local members = redis.call("ZRANGE", KEYS[2], 0, -1)
for _, m in ipairs(members) do
  if redis.call("EXISTS", ARGV[9] .. m) == 0 then
    redis.call("ZREM", KEYS[2], m)
  end
end
local kept, pruned = 1, 0
for _, m in ipairs(redis.call("ZREVRANGE", KEYS[2], 0, -1)) do
  if m ~= ARGV[7] then
    if kept < tonumber(ARGV[8]) then
      kept = kept + 1
    else
      redis.call("DEL", ARGV[9] .. m)
      redis.call("ZREM", KEYS[2], m)
      pruned = pruned + 1
    end
  end
end
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[5])
end
return pruned
`)

var deleteAllScript = redis.NewScript(`
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local n = 0
for _, m in ipairs(members) do
  if m ~= ARGV[1] then
    redis.call("DEL", ARGV[2] .. m)
    redis.call("ZREM", KEYS[1], m)
    n = n + 1
  end
end
return n
`)

// deleteOneScript removes a session and its index entry. The owner is read
// up front so both keys are declared; a hash that changed owner in between is
// left alone.
var deleteOneScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "user_id") ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[2])
return 1
`)

var dropStaleScript = redis.NewScript(`
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local n = 0
for _, m in ipairs(members) do
  if redis.call("EXISTS", ARGV[1] .. m) == 0 then
    redis.call("ZREM", KEYS[1], m)
    n = n + 1
  end
end
return n
`)

type SessionRepository struct {
	rdb   *redis.Client
	Now   func() time.Time
	Limit int
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb, Now: time.Now, Limit: repository.MaxSessionsPerUser}
}

func (r *SessionRepository) Create(ctx context.Context, userID, token string, ttl time.Duration) (*entity.Session, error) {
	now := r.Now().UTC()
	s := &entity.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	res, err := createScript.Run(ctx, r.rdb,
		[]string{sessionKey(token), userSetKey(userID)},
		s.ID,
		userID,
		s.ExpiresAt.Format(time.RFC3339Nano),
		s.CreatedAt.Format(time.RFC3339Nano),
		ttl.Milliseconds(),
		now.UnixMicro(),
		token,
		r.Limit,
		sessionKeyPrefix,
	).Int64()
	if err != nil {
		return nil, err
	}
	if res < 0 {
		return nil, repository.ErrDuplicateToken
	}
	return s, nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*entity.Session, error) {
	fields, err := r.rdb.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, err
	}
	return decodeSession(token, fields)
}

func decodeSession(token string, fields map[string]string) (*entity.Session, error) {
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	s := &entity.Session{ID: fields["id"], UserID: fields["user_id"], Token: token}
	var err error
	if s.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	uid, err := r.rdb.HGet(ctx, sessionKey(token), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return deleteOneScript.Run(ctx, r.rdb, []string{sessionKey(token), userSetKey(uid)}, uid, token).Err()
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID, exceptToken string) error {
	return deleteAllScript.Run(ctx, r.rdb, []string{userSetKey(userID)}, exceptToken, sessionKeyPrefix).Err()
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]*entity.Session, error) {
	tokens, err := r.rdb.ZRevRange(ctx, userSetKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, tok := range tokens {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(tok))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]*entity.Session, 0, len(tokens))
	for i, cmd := range cmds {
		s, err := decodeSession(tokens[i], cmd.Val())
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DeleteExpired drops index entries whose session hash redis already expired.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	iter := r.rdb.Scan(ctx, 0, userSetPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := dropStaleScript.Run(ctx, r.rdb, []string{iter.Val()}, sessionKeyPrefix).Int64()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, iter.Err()
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
