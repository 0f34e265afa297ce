package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisConnectTimeout = 5 * time.Second

// Redis is a Backend on top of go-redis. It is shared by every worker process.
type Redis struct {
	rdb *redis.Client
}

// ConnectRedis creates a Redis backend and verifies connectivity.
func ConnectRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{rdb: rdb}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	if err := r.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}

	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// IncrBy increments a counter and sets its expiry when the counter is created.
func (r *Redis) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	count, err := r.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	if count == delta && ttl > 0 {
		if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}

	return count, nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}

	return ok, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}

	return nil
}

func (r *Redis) ZAddNX(ctx context.Context, key, member string, score float64) (bool, error) {
	added, err := r.rdb.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, fmt.Errorf("redis zadd %s: %w", key, err)
	}

	return added > 0, nil
}

func (r *Redis) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}

	if err := r.rdb.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis zrem %s: %w", key, err)
	}

	return nil
}

func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, maxScore float64) error {
	upper := strconv.FormatFloat(maxScore, 'f', -1, 64)
	if err := r.rdb.ZRemRangeByScore(ctx, key, "-inf", upper).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore %s: %w", key, err)
	}

	return nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard %s: %w", key, err)
	}

	return n, nil
}

func (r *Redis) ZMinScore(ctx context.Context, key string) (float64, bool, error) {
	items, err := r.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis zrange %s: %w", key, err)
	}

	if len(items) == 0 {
		return 0, false, nil
	}

	return items[0].Score, true, nil
}

func (r *Redis) ZTrimOldest(ctx context.Context, key string, keep int64) error {
	if err := r.rdb.ZRemRangeByRank(ctx, key, 0, -(keep + 1)).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyrank %s: %w", key, err)
	}

	return nil
}

func (r *Redis) ZIncrBy(ctx context.Context, key, member string, delta float64) error {
	if err := r.rdb.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return fmt.Errorf("redis zincrby %s: %w", key, err)
	}

	return nil
}

func (r *Redis) ZTop(ctx context.Context, key string, n int64) ([]string, error) {
	members, err := r.rdb.ZRevRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}

	return members, nil
}

func (r *Redis) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}

	if err := r.rdb.LPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", key, err)
	}

	return nil
}

func (r *Redis) BRPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	res, err := r.rdb.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("redis brpop %s: %w", key, err)
	}

	// BRPOP replies with [key, value].
	if len(res) < 2 {
		return "", false, nil
	}

	return res[1], true, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

var _ Backend = (*Redis)(nil)
