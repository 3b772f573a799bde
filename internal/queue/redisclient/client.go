package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
	// PoolSize defaults to go-redis' 10 per CPU when zero.
	PoolSize int
}

// New does not dial; the first command opens the connection. ReadTimeout
// stays above the worker's BLMOVE wait so blocking pops are not cut short.
func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

// WaitReady pings until redis answers, the attempts run out or ctx ends.
func (c *Client) WaitReady(ctx context.Context, attempts int, every time.Duration) error {
	var err error

	for i := 0; i < attempts; i++ {
		if err = c.Ping(ctx); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}

	return fmt.Errorf("redis %s not ready after %d attempts: %w", c.redisdb.Options().Addr, attempts, err)
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Raw hands the underlying client to the queue.
func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
