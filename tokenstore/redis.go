package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores the token under "<prefix>:<key>".
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	key    string
	ttl    time.Duration
}

// NewRedis returns a Redis store. A ttl of zero stores the token without expiry.
func NewRedis(client redis.UniversalClient, prefix, key string, ttl time.Duration) *Redis {
	return &Redis{
		redis:  client,
		prefix: prefix,
		key:    key,
		ttl:    ttl,
	}
}

func (r *Redis) redisKey() string {
	if r.prefix == "" {
		return r.key
	}
	return r.prefix + ":" + r.key
}

func (r *Redis) Load(ctx context.Context) (string, error) {
	token, err := r.redis.Get(ctx, r.redisKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

func (r *Redis) Save(ctx context.Context, token string) error {
	if err := r.redis.Set(ctx, r.redisKey(), token, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.redisKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping measures one round trip to Redis.
func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
