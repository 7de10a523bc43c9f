package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a Cache implementation backed by go-redis, used when
// AEGIX_REDIS_URL is configured so capability-probe state and facilitator
// fee-payer lookups are shared across horizontally-scaled Aegix
// instances rather than kept per-process.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to a Redis instance described by addr (host:port) and
// namespaces every key under prefix.
func NewRedis(addr, password string, db int, prefix string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: prefix,
	}
}

func (r *Redis) key(k string) string { return r.prefix + ":" + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	r.client.Set(ctx, r.key(key), value, ttl)
}

func (r *Redis) Delete(ctx context.Context, key string) {
	r.client.Del(ctx, r.key(key))
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
