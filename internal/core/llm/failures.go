package llm

import (
	"context"
	"sync"
)

// FailureStore holds live failure counters per model.
type FailureStore interface {
	Failures(ctx context.Context, model string) (int, error)
	RecordFailure(ctx context.Context, model, reason string) (int, error)
	Reset(ctx context.Context, model string) error
}

// LocalFailures is a process-local FailureStore.
type LocalFailures struct {
	mu      sync.Mutex
	counts  map[string]int
	reasons map[string]string
}

// NewLocalFailures creates an empty process-local failure store.
func NewLocalFailures() *LocalFailures {
	return &LocalFailures{
		counts:  make(map[string]int),
		reasons: make(map[string]string),
	}
}

func (l *LocalFailures) Failures(_ context.Context, model string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counts[model], nil
}

func (l *LocalFailures) RecordFailure(_ context.Context, model, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[model]++
	l.reasons[model] = reason

	return l.counts[model], nil
}

// LastReason returns the last failure reason recorded for a model.
func (l *LocalFailures) LastReason(model string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.reasons[model]
}

func (l *LocalFailures) Reset(_ context.Context, model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.counts, model)
	delete(l.reasons, model)

	return nil
}

var _ FailureStore = (*LocalFailures)(nil)
