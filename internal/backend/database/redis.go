package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSlot stores the slot as a single redis string value.
type RedisSlot struct {
	client *redis.Client
	key    string
}

// NewRedisSlot accepts either a redis:// URL or a plain host:port address.
func NewRedisSlot(connectionString, key string) (*RedisSlot, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		opts = &redis.Options{Addr: connectionString}
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address must not be empty")
	}
	return &RedisSlot{
		client: redis.NewClient(opts),
		key:    key,
	}, nil
}

func (r *RedisSlot) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisSlot) Write(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisSlot) Remove(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisSlot) Close() error {
	return r.client.Close()
}
