// Package cache provides the shared key-value state used across workers:
// per-API usage counters, per-language topic counters, source health records,
// the acquisition cycle lock, the duplicate content hash set, trending tags,
// the analysis queue, and the shared rate windows and model failure counters.
//
// The package holds no policy. Missing keys read as zero or unknown.
// Every write goes straight to the backend so restart safety is inherited from it.
package cache

import (
	"context"
	"time"
)

// Backend is the minimal key-value surface the cache needs. Redis implements it
// for multi-worker deployments and Memory for single-process runs and tests.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sorted set operations.
	ZAddNX(ctx context.Context, key, member string, score float64) (bool, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZRemRangeByScore(ctx context.Context, key string, maxScore float64) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZMinScore(ctx context.Context, key string) (float64, bool, error)
	ZTrimOldest(ctx context.Context, key string, keep int64) error
	ZIncrBy(ctx context.Context, key, member string, delta float64) error
	ZTop(ctx context.Context, key string, n int64) ([]string, error)

	// List operations used as a FIFO queue.
	LPush(ctx context.Context, key string, values ...string) error
	BRPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)

	Ping(ctx context.Context) error
}
