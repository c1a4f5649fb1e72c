package persistence

import (
	"context"
	"time"

	"assistant_server/core/service/auth"
	"assistant_server/pkg/cache"
)

const oauthStatePrefix = "oauth:state:"

// RedisStateStore keeps OAuth state values in Redis so a consent flow can
// finish on any instance.
type RedisStateStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisStateStore builds the store. States expire after ttl.
func NewRedisStateStore(redisCache *cache.RedisCache, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{cache: redisCache, ttl: ttl}
}

var _ auth.StateStore = (*RedisStateStore)(nil)

// Save records a state value for the user who started the flow.
func (s *RedisStateStore) Save(ctx context.Context, state, userID string) error {
	return s.cache.Set(ctx, oauthStatePrefix+state, userID, s.ttl)
}

// Consume atomically reads and removes a state value. A state can only be
// redeemed once.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, bool, error) {
	return s.cache.GetDel(ctx, oauthStatePrefix+state)
}
