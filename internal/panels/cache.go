package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Cache stores serialized panels for a short time.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// RedisCache is a Cache on redis behind a circuit breaker, so a redis
// outage degrades to direct store reads instead of slow panels.
type RedisCache struct {
	rdb    *redis.Client
	cb     *gobreaker.CircuitBreaker
	prefix string
}

func NewRedisCache(rdb *redis.Client, log *logrus.Logger) *RedisCache {
	st := gobreaker.Settings{
		Name:        "PanelCache",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}
	return &RedisCache{
		rdb:    rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		prefix: "reparto:panel:",
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.cb.Execute(func() (interface{}, error) {
		res, err := c.rdb.Get(ctx, c.prefix+key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "panel cache get %s", key)
	}
	if val == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(val.(string)), dst); err != nil {
		return false, errors.Wrapf(err, "decode cached panel %s", key)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode panel")
	}
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, c.prefix+key, string(data), ttl).Err()
	})
	if err != nil {
		return errors.Wrapf(err, "panel cache set %s", key)
	}
	return nil
}

// Connect builds a redis client and checks it with a bounded ping. A
// failed ping is returned; the caller decides whether to run without cache.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
