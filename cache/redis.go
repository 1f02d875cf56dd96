package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/logging"
)

// DefaultKeyPrefix namespaces gomtl keys in a shared Redis database.
const DefaultKeyPrefix = "gomtl:"

const (
	defaultOpTimeout = 2 * time.Second
	scanBatch        = 100
)

// RedisConfig configures NewRedisCache.
type RedisConfig struct {
	URL       string        // e.g. "redis://localhost:6379/0"
	TTL       time.Duration // zero keeps entries forever
	KeyPrefix string        // default DefaultKeyPrefix
	Timeout   time.Duration // per operation, default 2s
}

// RedisCache is a translation cache shared between processes through Redis.
//
// The TranslationCache interface carries no context, so every operation runs
// under its own Timeout. Read failures are logged and reported as misses.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	timeout time.Duration
	logger  *logging.Logger
}

// Verify RedisCache implements Enumerable
var _ Enumerable = (*RedisCache)(nil)

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisLogger sets the logger used for swallowed read errors.
func WithRedisLogger(l *logging.Logger) RedisOption {
	return func(c *RedisCache) {
		c.logger = l
	}
}

// NewRedisCache connects to cfg.URL and checks the connection with PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisCache, error) {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, &gomtl.ConfigurationError{Message: "invalid redis URL: " + err.Error()}
	}

	c := NewRedisCacheFromClient(redis.NewClient(redisOpts), cfg.TTL, cfg.KeyPrefix, opts...)
	if cfg.Timeout > 0 {
		c.timeout = cfg.Timeout
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.client.Close()
		return nil, err
	}
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, keyPrefix string, opts ...RedisOption) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &RedisCache{
		client:  client,
		ttl:     ttl,
		prefix:  keyPrefix,
		timeout: defaultOpTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

// Get returns the value stored under key.
func (c *RedisCache) Get(key string) (string, bool) {
	ctx, cancel := c.opContext()
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.WarnOnce("redis cache read failed", false, zap.Error(err))
		return "", false
	}
	return val, true
}

// Set stores value under key with the configured TTL.
func (c *RedisCache) Set(key, value string) error {
	ctx, cancel := c.opContext()
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return &gomtl.CacheError{Message: "redis set " + key, Cause: err}
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(key string) error {
	ctx, cancel := c.opContext()
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return &gomtl.CacheError{Message: "redis del " + key, Cause: err}
	}
	return nil
}

// Entries lists every key under the prefix with SCAN. Keys that expire
// between SCAN and GET are skipped.
func (c *RedisCache) Entries() (map[string]string, error) {
	ctx, cancel := c.opContext()
	defer cancel()

	out := make(map[string]string)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, &gomtl.CacheError{Message: "redis scan", Cause: err}
		}
		for _, k := range keys {
			v, err := c.client.Get(ctx, k).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, &gomtl.CacheError{Message: "redis get " + k, Cause: err}
			}
			out[strings.TrimPrefix(k, c.prefix)] = v
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return &gomtl.CacheError{Message: "redis ping", Cause: err}
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
