package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindows_PruneAndRecord(t *testing.T) {
	ctx := context.Background()
	w := NewWindows(NewMemory())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, w.Record(ctx, "standard:minute", base.Add(time.Duration(i)*10*time.Second), time.Minute))
	}

	n, oldest, err := w.Prune(ctx, "standard:minute", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.WithinDuration(t, base, oldest, time.Millisecond)

	n, oldest, err = w.Prune(ctx, "standard:minute", base.Add(15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.WithinDuration(t, base.Add(20*time.Second), oldest, time.Millisecond)
}

func TestWindows_SameInstantIsCountedTwice(t *testing.T) {
	ctx := context.Background()
	w := NewWindows(NewMemory())

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.Record(ctx, "premium:day", at, time.Hour))
	require.NoError(t, w.Record(ctx, "premium:day", at, time.Hour))

	n, _, err := w.Prune(ctx, "premium:day", at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWindows_EmptyWindow(t *testing.T) {
	n, oldest, err := NewWindows(NewMemory()).Prune(context.Background(), "none", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, oldest.IsZero())
}

func TestFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFailures(NewMemory(), time.Hour)

	n, err := f.Failures(ctx, "gemini-2.5-pro")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.RecordFailure(ctx, "gemini-2.5-pro", "quota")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.RecordFailure(ctx, "gemini-2.5-pro", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reason, err := f.LastReason(ctx, "gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "timeout", reason)

	require.NoError(t, f.Reset(ctx, "gemini-2.5-pro"))

	n, err = f.Failures(ctx, "gemini-2.5-pro")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemory(), "analysis_queue")

	require.NoError(t, q.Enqueue(ctx, 1, 2))
	require.NoError(t, q.Enqueue(ctx, 3))

	var got []int64

	for range 3 {
		id, ok, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		got = append(got, id)
	}

	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q := NewQueue(NewMemory(), "analysis_queue")

	_, ok, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_DequeueWakesOnPush(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemory(), "analysis_queue")

	go func() {
		time.Sleep(20 * time.Millisecond)

		_ = q.Enqueue(ctx, 42)
	}()

	id, ok, err := q.Dequeue(ctx, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestQueue_DequeueCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := NewQueue(NewMemory(), "q").Dequeue(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}
