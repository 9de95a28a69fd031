package importer

// redis_store.go is the SessionStore for multi-instance deployments: any
// instance can poll or cancel a session started on another one. Sessions are
// stored as JSON values with a TTL plus a sorted-set index by start time.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionKeyPrefix = "cartes:import:session:"
	redisSessionIndexKey  = "cartes:import:sessions"
)

// RedisStore is a Redis-backed SessionStore.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a session store from a Redis URL
// (redis://host:port/db).
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

// Ping verifies connectivity at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Put implements SessionStore.
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisSessionKeyPrefix+s.ID, data, r.ttl)
	pipe.ZAdd(ctx, redisSessionIndexKey, redis.Z{
		Score:  float64(s.StartTime.UnixMilli()),
		Member: s.ID,
	})
	pipe.Expire(ctx, redisSessionIndexKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get implements SessionStore.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Cancel implements SessionStore.
//
// The read-modify-write is not atomic across instances, which is acceptable:
// each session has a single writer and a cancel racing a final Put resolves
// to one of two valid terminal states.
func (r *RedisStore) Cancel(ctx context.Context, id string) (*Session, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	s.Status = StatusCancelled
	s.EndTime = time.Now()
	if err := r.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// List implements SessionStore.
func (r *RedisStore) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := r.client.ZRevRange(ctx, redisSessionIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Value expired before its index entry; clean up lazily.
				r.client.ZRem(ctx, redisSessionIndexKey, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
