// Package redis provides the shared Redis client used for health checks and
// the scan-status cache.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/logger"
)

// Client wraps redis.Client with additional functionality.
type Client struct {
	client *redis.Client
	logger *logger.Logger
}

// New creates a new Redis client and verifies the connection.
func New(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("redis config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info("redis connected", "addr", cfg.Addr(), "pool_size", cfg.PoolSize)
	return &Client{client: client, logger: log}, nil
}

// Ping checks connectivity, used by the readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetStatus caches a terminal scan status blob with a TTL so short-lived
// pollers do not hit Postgres for every request after the progress record
// is gone.
func (c *Client) SetStatus(ctx context.Context, scanID string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, statusKey(scanID), payload, ttl).Err()
}

// GetStatus returns the cached status blob, or redis.Nil-wrapped miss.
func (c *Client) GetStatus(ctx context.Context, scanID string) ([]byte, error) {
	return c.client.Get(ctx, statusKey(scanID)).Bytes()
}

// IsMiss reports whether an error from GetStatus is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}

func statusKey(scanID string) string {
	return "scan:status:" + scanID
}
