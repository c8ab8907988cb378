package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Default stream configuration
const (
	DefaultStreamMaxLen = 10000 // Default max entries per stream
)

// Config configures a Client.
type Config struct {
	// URL is a redis:// or rediss:// URL, e.g. redis://:password@localhost:6379/0.
	URL string
	// StreamMaxLen caps every stream written with XAdd. 0 is unlimited.
	StreamMaxLen int64
}

// ConfigFromEnv reads REDIS_URL and REDIS_STREAM_MAXLEN.
func ConfigFromEnv() Config {
	return Config{
		URL:          utils.Env("REDIS_URL", ""),
		StreamMaxLen: utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen),
	}
}

// Client wraps the Redis client for committed-range notifications (Pub/Sub and Streams).
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // Max entries per stream (0 = unlimited)
}

// NewClient connects to cfg.URL and pings it.
func NewClient(ctx context.Context, logger *zap.Logger, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	// Connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	// Timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int64("streamMaxLen", cfg.StreamMaxLen))

	return &Client{
		client:       rdb,
		logger:       logger,
		streamMaxLen: cfg.StreamMaxLen,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to one or more Redis Pub/Sub channels.
// The caller is responsible for closing the PubSub object when done.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// XAdd adds an entry to a stream, capped at the configured MAXLEN, and returns its id.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}

	// Approximate trimming is much cheaper for Redis
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}

	return c.client.XAdd(ctx, args).Result()
}

// XRead reads entries of stream after lastID. Use "0" to read from the beginning, "$" to
// read only new entries. block is how long to wait for new entries; 0 blocks forever.
func (c *Client) XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
}

// XLen returns the number of entries in a stream.
func (c *Client) XLen(ctx context.Context, stream string) (int64, error) {
	return c.client.XLen(ctx, stream).Result()
}
