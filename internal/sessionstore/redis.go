package sessionstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBackend shares session keys between hosts. Keys are used as-is, they already
// carry the prefix and website id.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(addr string, db int) *RedisBackend {
	return &RedisBackend{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Ping checks the server is reachable.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping")
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get %s", key)
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	return errors.Wrapf(r.client.Set(ctx, key, value, 0).Err(), "redis set %s", key)
}

// SetMany uses MSET, which redis applies atomically.
func (r *RedisBackend) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	return errors.Wrap(r.client.MSet(ctx, pairs...).Err(), "redis mset")
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(r.client.Del(ctx, key).Err(), "redis del %s", key)
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
