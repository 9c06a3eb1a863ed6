package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used when none is configured.
const DefaultRedisKey = "storefront:credential"

// RedisStore persists the credential under a single Redis key, shared by every
// gateway instance pointing at the same Redis.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a Redis backed store. A zero ttl keeps the key forever.
func NewRedisStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (Credential, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to get credentials from redis: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credentials from redis: %w", err)
	}
	return cred, nil
}

func (r *RedisStore) Save(ctx context.Context, cred Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credentials in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete credentials from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Name() string {
	return fmt.Sprintf("RedisStore(%s)", r.key)
}
