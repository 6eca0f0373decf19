package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/slotflow/core"
)

const keyPrefix = "slotflow:session:"

// RedisStoreOptions configures the Redis backed session store.
type RedisStoreOptions struct {
	// TTL is the session expiry refreshed on every write.
	TTL time.Duration
	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration
	Password    string
	DB          int
}

var _ core.SessionStore = (*RedisStore)(nil)

// RedisStore is a durable SessionStore sharing state across stateless worker
// processes. Sessions are stored as JSON under a per-session key with a TTL
// refreshed on write. There is deliberately no local cache: no process may
// trust one as source of truth.
//
// Unreachable-backend errors are reported as core.ErrStoreUnavailable
// (wrapped) so callers can degrade the workflow to inactive instead of
// failing the turn.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a bounded ping.
func NewRedisStore(addr string, optFns ...func(o *RedisStoreOptions)) (*RedisStore, error) {
	opts := RedisStoreOptions{
		TTL:         24 * time.Hour,
		DialTimeout: 5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

// NewRedisStoreFromClient wraps an existing client (used by tests with miniredis).
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements core.SessionStore.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Put implements core.SessionStore. Writes are last-writer-wins; the TTL is
// refreshed on every write.
func (s *RedisStore) Put(ctx context.Context, sess *core.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Clear implements core.SessionStore.
func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }
