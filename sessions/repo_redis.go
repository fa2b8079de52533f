package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RedisRepo stores sessions as JSON strings with a redis-enforced TTL, so every instance
// behind the load balancer sees the same sessions.
type RedisRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRepo creates a Store on top of an existing client (a miniredis client in tests).
func NewRedisRepo(client redis.UniversalClient, keyPrefix string) *RedisRepo {
	return &RedisRepo{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRepo) key(id string) string {
	return fmt.Sprintf("%ssession:%s", r.keyPrefix, id)
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo Get] failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("[RedisRepo Get] failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisRepo) Upsert(ctx context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("sessionID is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[RedisRepo Upsert] failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Upsert] failed to write session: %w", err)
	}
	session.isNew = false
	return nil
}

func (r *RedisRepo) Touch(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, r.key(id), ttl).Result()
	if err != nil {
		return fmt.Errorf("[RedisRepo Touch] failed to extend session: %w", err)
	}
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Delete] failed to delete session: %w", err)
	}
	return nil
}
