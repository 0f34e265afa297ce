package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Windows keeps sliding request windows in the backend so every worker sees the
// same call accounting. Each window is a sorted set of reservations scored by time.
type Windows struct {
	backend Backend
}

// NewWindows creates a shared window store.
func NewWindows(backend Backend) *Windows {
	return &Windows{backend: backend}
}

// Prune drops reservations at or before cutoff and returns the remaining count
// and the oldest remaining reservation time.
func (w *Windows) Prune(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error) {
	k := keyRateWindow + key

	if err := w.backend.ZRemRangeByScore(ctx, k, unixScore(cutoff)); err != nil {
		return 0, time.Time{}, err
	}

	n, err := w.backend.ZCard(ctx, k)
	if err != nil {
		return 0, time.Time{}, err
	}

	if n == 0 {
		return 0, time.Time{}, nil
	}

	score, ok, err := w.backend.ZMinScore(ctx, k)
	if err != nil || !ok {
		return int(n), time.Time{}, err
	}

	sec, frac := math.Modf(score)

	return int(n), time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
}

// Record adds a reservation at the given time.
func (w *Windows) Record(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	k := keyRateWindow + key
	member := strconv.FormatInt(at.UnixNano(), 10) + "-" + uuid.NewString()

	if _, err := w.backend.ZAddNX(ctx, k, member, unixScore(at)); err != nil {
		return err
	}

	return w.backend.Expire(ctx, k, ttl)
}

// Failures keeps model failure counters in the backend.
type Failures struct {
	backend Backend
	ttl     time.Duration
}

// NewFailures creates a shared failure counter store.
func NewFailures(backend Backend, ttl time.Duration) *Failures {
	return &Failures{backend: backend, ttl: ttl}
}

// Failures returns the failure count of a model; unknown models have zero.
func (f *Failures) Failures(ctx context.Context, model string) (int, error) {
	raw, ok, err := f.backend.Get(ctx, keyModelFailures+model)
	if err != nil || !ok {
		return 0, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse failure count for %s: %w", model, err)
	}

	return n, nil
}

// RecordFailure increments the failure count and stores the last reason.
func (f *Failures) RecordFailure(ctx context.Context, model, reason string) (int, error) {
	n, err := f.backend.IncrBy(ctx, keyModelFailures+model, 1, f.ttl)
	if err != nil {
		return 0, err
	}

	if err := f.backend.Set(ctx, keyModelFailures+model+failureReasonPart, reason, f.ttl); err != nil {
		return int(n), err
	}

	return int(n), nil
}

// LastReason returns the last recorded failure reason for a model.
func (f *Failures) LastReason(ctx context.Context, model string) (string, error) {
	raw, _, err := f.backend.Get(ctx, keyModelFailures+model+failureReasonPart)
	return raw, err
}

// Reset clears the failure count of a model.
func (f *Failures) Reset(ctx context.Context, model string) error {
	return f.backend.Del(ctx, keyModelFailures+model, keyModelFailures+model+failureReasonPart)
}

// Queue is a FIFO list of article identifiers awaiting analysis.
type Queue struct {
	backend Backend
	name    string
}

// NewQueue creates a queue stored under the given key.
func NewQueue(backend Backend, name string) *Queue {
	return &Queue{backend: backend, name: name}
}

// Enqueue appends article identifiers.
func (q *Queue) Enqueue(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = strconv.FormatInt(id, 10)
	}

	return q.backend.LPush(ctx, q.name, values...)
}

// Dequeue waits up to timeout for the next identifier. ok is false on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	raw, ok, err := q.backend.BRPop(ctx, q.name, timeout)
	if err != nil || !ok {
		return 0, false, err
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse queued id %q: %w", raw, err)
	}

	return id, true, nil
}
