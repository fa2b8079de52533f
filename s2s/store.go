package s2s

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/jrsteele09/possession-claims-frontend/tokencache"
	"github.com/redis/go-redis/v9"
)

// LeaseStore caches lease tokens by key for the configured lease lifetime. Get reports a
// miss with errors.ErrLeaseNotFound.
type LeaseStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// RedisLeaseStore shares the lease across every instance of the frontend.
type RedisLeaseStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisLeaseStore(client redis.UniversalClient, keyPrefix string) *RedisLeaseStore {
	return &RedisLeaseStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisLeaseStore) Get(ctx context.Context, key string) (string, error) {
	token, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.ErrLeaseNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[RedisLeaseStore Get] %w", err)
	}
	return token, nil
}

func (s *RedisLeaseStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("[RedisLeaseStore Set] %w", err)
	}
	return nil
}

// MemoryLeaseStore keeps the lease in process, for single instance deployments and tests.
type MemoryLeaseStore struct {
	cache *tokencache.Cache[string]
}

func NewMemoryLeaseStore(cache *tokencache.Cache[string]) *MemoryLeaseStore {
	return &MemoryLeaseStore{cache: cache}
}

func (s *MemoryLeaseStore) Get(_ context.Context, key string) (string, error) {
	token, ok := s.cache.Get(key)
	if !ok {
		return "", apperrors.ErrLeaseNotFound
	}
	return token, nil
}

func (s *MemoryLeaseStore) Set(_ context.Context, key, token string, ttl time.Duration) error {
	s.cache.Set(key, token, ttl)
	return nil
}

// TieredLeaseStore answers from the in-process cache before asking the shared store. Leases
// read from the shared store are kept locally for at most expirySkew, so a local copy never
// outlives the token itself.
type TieredLeaseStore struct {
	local  *MemoryLeaseStore
	shared LeaseStore
}

func NewTieredLeaseStore(local *MemoryLeaseStore, shared LeaseStore) *TieredLeaseStore {
	return &TieredLeaseStore{local: local, shared: shared}
}

func (s *TieredLeaseStore) Get(ctx context.Context, key string) (string, error) {
	if token, err := s.local.Get(ctx, key); err == nil {
		return token, nil
	}
	token, err := s.shared.Get(ctx, key)
	if err != nil {
		return "", err
	}
	_ = s.local.Set(ctx, key, token, expirySkew)
	return token, nil
}

func (s *TieredLeaseStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := s.shared.Set(ctx, key, token, ttl); err != nil {
		return err
	}
	return s.local.Set(ctx, key, token, min(ttl, expirySkew))
}
