// Package redis implements a store backend over a Redis server or cluster.
// Transactions are optimistic: reads WATCH their keys, writes are staged
// client-side and applied at commit as one MULTI/EXEC unit guarded by the
// WATCH set, so a key changed by a concurrent writer fails the commit with
// the retryable redis.TxFailedErr.
package redis

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/redis/go-redis/v9"
	sretry "github.com/sethvargo/go-retry"

	"github.com/axonkv/axon"
)

// Redis configurable options.
type Options struct {
	// Redis server(cluster) address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// TLS config.
	TLSConfig *tls.Config
}

// DefaultOptions.
func DefaultOptions() Options {
	return Options{
		Address:  "localhost:6379",
		Password: "", // no password set
		DB:       0,  // use default DB
	}
}

// Connection wraps one Redis client used as a store connection. The executor
// owns a pool of these; each is independently opened and closed.
type Connection struct {
	Client  *redis.Client
	Options Options

	mu     sync.Mutex
	closed bool
}

// OpenConnection opens one Redis connection and verifies it with a Ping,
// retrying transient failures with backoff before giving up.
func OpenConnection(ctx context.Context, options Options) (*Connection, error) {
	client := redis.NewClient(&redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	})
	if err := axon.Retry(ctx, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			if axon.ShouldRetry(err) {
				return sretry.RetryableError(err)
			}
			return err
		}
		return nil
	}, nil); err != nil {
		client.Close()
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: err}
	}
	return &Connection{Client: client, Options: options}, nil
}

// Opener returns an axon.OpenConnectionFunc bound to options, for executor Init.
func Opener(options Options) axon.OpenConnectionFunc {
	return func(ctx context.Context) (axon.Connection, error) {
		return OpenConnection(ctx, options)
	}
}

func (c *Connection) CreateTransaction() (axon.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: errClosed}
	}
	return newTransaction(c.Client), nil
}

// Close the connection's client.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Client.Close()
}
