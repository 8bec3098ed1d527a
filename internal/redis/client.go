package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the shared client backing approval locks and the
// notification sink. Zero tunables fall back to defaults sized for those
// two workloads, both of which are short single-key operations.
type Options struct {
	Addr     string
	Username string
	Password string

	PoolSize    int
	IOTimeout   time.Duration
	PingTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PoolSize == 0 {
		o.PoolSize = 10
	}
	if o.IOTimeout == 0 {
		o.IOTimeout = 2 * time.Second
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// NewRedisClient connects and verifies reachability up front, so a
// misconfigured address fails at startup rather than on the first
// approval.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	opts = opts.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		ReadTimeout:  opts.IOTimeout,
		WriteTimeout: opts.IOTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
