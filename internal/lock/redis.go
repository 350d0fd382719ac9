// Package lock provides the Redis-backed tenant lock used when several
// server replicas share one registry.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/alysalud/visitas/internal/core"
)

const keyPrefix = "visitas:ingest"

// Connect opens a Redis client from a redis:// URL and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Redis is a core.TenantLocker on redislock. The TTL must outlast the
// longest ingestion run; a crashed replica's lock expires with it.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl}
}

var _ core.TenantLocker = (*Redis)(nil)

func tenantKey(tenantID int64) string {
	return fmt.Sprintf("%s:%d", keyPrefix, tenantID)
}

// Lock obtains the tenant lock without retrying. A held lock yields
// core.ErrTenantBusy.
func (r *Redis) Lock(ctx context.Context, tenantID int64) (func(context.Context) error, error) {
	l, err := r.client.Obtain(ctx, tenantKey(tenantID), r.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, core.ErrTenantBusy
		}
		return nil, fmt.Errorf("obtain tenant lock: %w", err)
	}

	return func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release tenant lock: %w", err)
		}
		return nil
	}, nil
}
