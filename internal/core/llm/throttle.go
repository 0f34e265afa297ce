package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
)

// WindowStore holds time-ordered reservations keyed by window.
type WindowStore interface {
	// Prune drops reservations at or before cutoff and returns the remaining
	// count and the oldest remaining reservation.
	Prune(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error)
	Record(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

// LimitFunc returns the requests-per-minute and requests-per-day limits of a
// tier group. A non-positive limit disables that window.
type LimitFunc func(group string) (rpm, rpd int)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Throttle enforces per tier group sliding windows of one minute and one day.
type Throttle struct {
	mu     sync.Mutex
	store  WindowStore
	limits LimitFunc
	now    func() time.Time
	sleep  SleepFunc
	logger *zerolog.Logger
}

// NewThrottle creates a throttle. store may be process-local or shared.
func NewThrottle(store WindowStore, limits LimitFunc, logger *zerolog.Logger) *Throttle {
	return &Throttle{
		store:  store,
		limits: limits,
		now:    time.Now,
		sleep:  sleepContext,
		logger: logger,
	}
}

// SetClock overrides the time source and the sleeper.
func (t *Throttle) SetClock(now func() time.Time, sleep SleepFunc) {
	t.now = now
	t.sleep = sleep
}

// Group maps a model name onto its rate limit group.
func Group(model string) string {
	name := strings.ToLower(model)

	switch {
	case strings.Contains(name, modelPartFlashLite),
		strings.Contains(name, modelPartLite),
		strings.Contains(name, modelPartNano):
		return GroupFallback
	case strings.Contains(name, modelPartPro):
		return GroupPremium
	case strings.Contains(name, modelPartFlash),
		strings.Contains(name, modelPartMini):
		return GroupStandard
	default:
		return GroupDefault
	}
}

// Throttle waits until the minute window of the model's group has room and
// records a reservation in both windows. A full day window fails immediately
// with ErrQuotaExhausted.
func (t *Throttle) Throttle(ctx context.Context, model string) error {
	group := Group(model)
	rpm, rpd := t.limits(group)

	for {
		wait, err := t.reserve(ctx, group, rpm, rpd)
		if err != nil {
			return err
		}

		if wait == 0 {
			return nil
		}

		observability.ThrottleWaits.WithLabelValues(group).Inc()
		observability.ThrottleWaitSeconds.WithLabelValues(group).Observe(wait.Seconds())

		t.logger.Debug().
			Str(logKeyModel, model).
			Str(logKeyGroup, group).
			Dur(logKeyWait, wait).
			Msg("minute window full, waiting")

		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a reservation when both windows have room. Otherwise it
// returns how long to wait for the minute window to free a slot.
func (t *Throttle) reserve(ctx context.Context, group string, rpm, rpd int) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	dayCount, _, err := t.store.Prune(ctx, group+windowDaySuffix, now.Add(-dayWindow))
	if err != nil {
		return 0, fmt.Errorf("prune day window: %w", err)
	}

	minuteCount, oldest, err := t.store.Prune(ctx, group+windowMinuteSuffix, now.Add(-minuteWindow))
	if err != nil {
		return 0, fmt.Errorf("prune minute window: %w", err)
	}

	if rpd > 0 && dayCount >= rpd {
		observability.QuotaExhausted.WithLabelValues(group).Inc()
		return 0, fmt.Errorf("%w: %s group reached %d requests per day", apperrors.ErrQuotaExhausted, group, rpd)
	}

	if rpm > 0 && minuteCount >= rpm {
		wait := oldest.Add(minuteWindow).Sub(now)
		if wait < minThrottleWait {
			wait = minThrottleWait
		}

		return wait, nil
	}

	if err := t.store.Record(ctx, group+windowDaySuffix, now, dayWindow); err != nil {
		return 0, fmt.Errorf("record day window: %w", err)
	}

	if err := t.store.Record(ctx, group+windowMinuteSuffix, now, minuteWindow); err != nil {
		return 0, fmt.Errorf("record minute window: %w", err)
	}

	return 0, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LocalWindows is a process-local WindowStore.
type LocalWindows struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewLocalWindows creates an empty process-local window store.
func NewLocalWindows() *LocalWindows {
	return &LocalWindows{windows: make(map[string][]time.Time)}
}

func (l *LocalWindows) Prune(_ context.Context, key string, cutoff time.Time) (int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]

	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}

	w = w[i:]
	l.windows[key] = w

	if len(w) == 0 {
		return 0, time.Time{}, nil
	}

	return len(w), w[0], nil
}

func (l *LocalWindows) Record(_ context.Context, key string, at time.Time, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows[key] = append(l.windows[key], at)

	return nil
}

var _ WindowStore = (*LocalWindows)(nil)
