package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const registrationKeyPrefix = "push:registration:"

// RedisRepository remembers recently registered channel sets so redelivered
// messages do not hit the service twice.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// IsRegistered returns true if fingerprint was marked within the TTL.
func (r *RedisRepository) IsRegistered(ctx context.Context, fingerprint string) (bool, error) {
	exists, err := r.client.Exists(ctx, registrationKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// MarkRegistered stores fingerprint with the repository TTL.
func (r *RedisRepository) MarkRegistered(ctx context.Context, fingerprint string) error {
	return r.client.SetEX(ctx, registrationKeyPrefix+fingerprint, "1", r.ttl).Err()
}
