package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements LocationCache using SET with EX so entries expire
// server-side without any sweeper on our end.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c}
}

// NewRedisCacheFromClient reuses an existing client, typically the relay's.
func NewRedisCacheFromClient(c *redis.Client) *RedisCache {
	return &RedisCache{client: c}
}

func (r *RedisCache) SetCurrent(ctx context.Context, driverID string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(driverID), b, TTL).Err()
}

func (r *RedisCache) GetCurrent(ctx context.Context, driverID string) (Entry, error) {
	b, err := r.client.Get(ctx, Key(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
