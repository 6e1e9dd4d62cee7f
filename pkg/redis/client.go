package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Nil re-exports the go-redis miss sentinel so callers avoid a direct import.
var Nil = redis.Nil

// Client wraps the redis connection helpers the platform needs: small KV
// operations for locks, and pub/sub for the gallery change signal.
type Client struct {
	raw *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.raw == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.raw.Get(ctx, key).Result()
}

// SetNX stores the value only when the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.raw == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.raw.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.Del(ctx, keys...).Err()
}

// Publish sends a payload on the named channel.
func (c *Client) Publish(ctx context.Context, channel string, payload any) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub subscription on the named channel. The caller owns
// the returned handle and must Close it.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("redis client not initialized")
	}
	sub := c.raw.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("confirm subscription: %w", err)
	}
	return sub, nil
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.Ping(ctx).Err()
}

// Close releases the underlying pool.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
