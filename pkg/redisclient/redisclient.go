package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/alim08/marketgql/pkg/breaker"
	"github.com/alim08/marketgql/pkg/metrics"
)

var ErrCircuitBreakerOpen = breaker.ErrOpen

type Client struct {
	rdb     *redis.Client
	breaker *breaker.Breaker
	// MaxLen caps streams written by AddToStream (approximate trim); 0 keeps
	// everything.
	MaxLen  int64
	backoff func() backoff.BackOff
}

// New constructs a Client with pool tuning for the pipeline services.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return Wrap(redis.NewClient(opt)), nil
}

// Wrap adds metrics, retries and the breaker around an existing client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:     rdb,
		breaker: breaker.New("redis", 5, 30*time.Second),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// guarded runs fn behind the breaker, retrying with backoff when retry is set.
func (c *Client) guarded(ctx context.Context, operation string, timeout time.Duration, retry bool, fn func(ctx context.Context) error) error {
	return c.withMetrics(operation, func() error {
		if !c.breaker.Allow() {
			return ErrCircuitBreakerOpen
		}
		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := fn(ctx)
			if errors.Is(err, redis.Nil) {
				c.breaker.Record(nil)
				return backoff.Permanent(err)
			}
			c.breaker.Record(err)
			return err
		}
		if !retry {
			err := op()
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return perm.Err
			}
			return err
		}
		return backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
	})
}

// AddToStream appends into a Redis Stream with retry/backoff and returns the
// entry id.
func (c *Client) AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	var id string
	err := c.guarded(ctx, "xadd", 100*time.Millisecond, true, func(ctx context.Context) error {
		args := &redis.XAddArgs{Stream: stream, Values: values}
		if c.MaxLen > 0 {
			args.MaxLen = c.MaxLen
			args.Approx = true
		}
		var err error
		id, err = c.rdb.XAdd(ctx, args).Result()
		return err
	})
	return id, err
}

// ReadStream blocks up to block for entries after lastID; a negative block
// does not wait and zero waits forever. A timeout with no entries returns
// nil, nil.
func (c *Client) ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error) {
	var msgs []redis.XMessage
	err := c.withMetrics("xread", func() error {
		res, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   count,
			Block:   block,
		}).Result()
		if err != nil {
			return err
		}
		for _, s := range res {
			msgs = append(msgs, s.Messages...)
		}
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return msgs, err
}

// DeleteFromStream removes archived entries.
func (c *Client) DeleteFromStream(ctx context.Context, stream string, ids ...string) (int64, error) {
	var n int64
	err := c.guarded(ctx, "xdel", time.Second, true, func(ctx context.Context) error {
		var err error
		n, err = c.rdb.XDel(ctx, stream, ids...).Result()
		return err
	})
	return n, err
}

// StreamLength reports the number of entries in stream.
func (c *Client) StreamLength(ctx context.Context, stream string) (int64, error) {
	var n int64
	err := c.withMetrics("xlen", func() error {
		var err error
		n, err = c.rdb.XLen(ctx, stream).Result()
		return err
	})
	return n, err
}

// Publish wraps rdb.Publish with a short timeout
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	return c.guarded(ctx, "publish", 50*time.Millisecond, false, func(ctx context.Context) error {
		return c.rdb.Publish(ctx, channel, msg).Err()
	})
}

// HSet sets hash fields and, when ttl > 0, refreshes the key's expiry.
func (c *Client) HSet(ctx context.Context, key string, values map[string]interface{}, ttl time.Duration) error {
	return c.guarded(ctx, "hset", 100*time.Millisecond, true, func(ctx context.Context) error {
		if ttl <= 0 {
			return c.rdb.HSet(ctx, key, values).Err()
		}
		pipe := c.rdb.TxPipeline()
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, ttl)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// HGetAll retrieves all fields from a hash. A missing key yields an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := c.withMetrics("hgetall", func() error {
		var err error
		out, err = c.rdb.HGetAll(ctx, key).Result()
		return err
	})
	return out, err
}

// Keys lists keys matching pattern using SCAN.
func (c *Client) Keys(ctx context.Context, pattern string, limit int) ([]string, error) {
	var keys []string
	err := c.withMetrics("scan", func() error {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
		return iter.Err()
	})
	return keys, err
}

// SetJSON stores v as JSON under key for ttl.
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.guarded(ctx, "set", 100*time.Millisecond, false, func(ctx context.Context) error {
		return c.rdb.Set(ctx, key, b, ttl).Err()
	})
}

// GetJSON decodes key into v. found is false when the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, v interface{}) (found bool, err error) {
	var b []byte
	err = c.guarded(ctx, "get", 100*time.Millisecond, false, func(ctx context.Context) error {
		var err error
		b, err = c.rdb.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// ZAdd adds member at score and keeps only the newest keep members.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string, keep int64) error {
	return c.guarded(ctx, "zadd", 100*time.Millisecond, true, func(ctx context.Context) error {
		pipe := c.rdb.TxPipeline()
		pipe.ZAdd(ctx, key, &redis.Z{Score: score, Member: member})
		if keep > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, -keep-1)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// ZRevRange returns up to n members, highest score first.
func (c *Client) ZRevRange(ctx context.Context, key string, n int64) ([]string, error) {
	var out []string
	err := c.withMetrics("zrevrange", func() error {
		var err error
		out, err = c.rdb.ZRevRange(ctx, key, 0, n-1).Result()
		return err
	})
	return out, err
}

// Subscribe creates a pub/sub subscription
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Client returns the underlying Redis client for direct access
func (c *Client) Client() *redis.Client {
	return c.rdb
}
