package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter is the enterprise StateAdapter variant: snapshot get/set
// keyed by component id, using Redis's atomic per-key operations for
// serialized access.
type RedisAdapter struct {
	client *redis.Client
	prefix string
}

// NewRedisAdapter connects to addr/db with the given key prefix.
func NewRedisAdapter(addr string, db int, prefix string) *RedisAdapter {
	if prefix == "" {
		prefix = "kernel:state:"
	}
	return &RedisAdapter{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

func (a *RedisAdapter) key(componentID string) string { return a.prefix + componentID }

func (a *RedisAdapter) Save(ctx context.Context, componentID string, blob []byte) error {
	if err := a.client.Set(ctx, a.key(componentID), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis state save %q: %w", componentID, err)
	}
	return nil
}

func (a *RedisAdapter) Load(ctx context.Context, componentID string) ([]byte, bool, error) {
	blob, err := a.client.Get(ctx, a.key(componentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis state load %q: %w", componentID, err)
	}
	return blob, true, nil
}

func (a *RedisAdapter) Delete(ctx context.Context, componentID string) error {
	if err := a.client.Del(ctx, a.key(componentID)).Err(); err != nil {
		return fmt.Errorf("redis state delete %q: %w", componentID, err)
	}
	return nil
}

func (a *RedisAdapter) Close() error { return a.client.Close() }
