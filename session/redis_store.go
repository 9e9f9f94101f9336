package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the Redis backend cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	keyAccess  = ":access"
	keyRefresh = ":refresh"
	keyUser    = ":user"
)

// RedisStore persists the session triple in Redis under three keys sharing a
// prefix. Useful when several processes (CLI invocations, sidecar tools)
// should share one authenticated session. Writes use a transactional pipeline
// so the triple is swapped atomically.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on rdb under prefix. ttl bounds how long a
// persisted session outlives its last Save; zero means no expiry, matching
// browser local storage semantics.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "tm:session"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) keys() []string {
	return []string{r.prefix + keyAccess, r.prefix + keyRefresh, r.prefix + keyUser}
}

// Load fetches all three entries in one round trip. Any missing entry means
// the persisted state is partial; it is cleared and reported as absent.
func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	vals, err := r.rdb.MGet(ctx, r.keys()...).Result()
	if err != nil {
		return nil, errors.Join(ErrRedisUnavailable, err)
	}

	s := &Session{}
	if v, ok := vals[0].(string); ok {
		s.AccessToken = v
	}
	if v, ok := vals[1].(string); ok {
		s.RefreshToken = v
	}
	if v, ok := vals[2].(string); ok {
		s.User = []byte(v)
	}
	if !s.Complete() {
		_ = r.Clear(ctx)
		return nil, nil
	}
	return s, nil
}

// Save writes the triple in a single MULTI/EXEC so concurrent readers observe
// either the old session or the new one, never a mix.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	keys := r.keys()
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keys[0], s.AccessToken, r.ttl)
		pipe.Set(ctx, keys[1], s.RefreshToken, r.ttl)
		pipe.Set(ctx, keys[2], string(s.User), r.ttl)
		return nil
	})
	if err != nil {
		return errors.Join(ErrRedisUnavailable, err)
	}
	return nil
}

// Clear deletes all three entries. Deleting absent keys is a no-op.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.keys()...).Err(); err != nil {
		return errors.Join(ErrRedisUnavailable, err)
	}
	return nil
}
