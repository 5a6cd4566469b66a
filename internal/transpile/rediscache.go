package transpile

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an external, cross-process compile cache backed by Redis,
// satisfying spec.md §3's "the interface permits substitution with an
// external store". Grounded on the teacher's internal/events.ConnectRedis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheOptions configures a RedisCache.
type RedisCacheOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces cache keys, default "svcrun:transpile:".
	KeyPrefix string
	// TTL is the per-entry expiry; zero means entries never expire, matching
	// the in-memory cache's "never evicted by default" behavior.
	TTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection with a Ping,
// exactly as the teacher's events.ConnectRedis does for its pub/sub client.
func NewRedisCache(opts RedisCacheOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("transpile: connect to redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "svcrun:transpile:"
	}

	return &RedisCache{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (c *RedisCache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(fingerprint)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("transpile: redis get: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Put(ctx context.Context, fingerprint, compiled string) error {
	if err := c.client.Set(ctx, c.key(fingerprint), compiled, c.ttl).Err(); err != nil {
		return fmt.Errorf("transpile: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
