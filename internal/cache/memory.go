package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is a thread-safe in-process Backend. It honours TTLs lazily on access.
type Memory struct {
	mu     sync.Mutex
	values map[string]memEntry
	zsets  map[string]*memZSet
	lists  map[string][]string
	notify chan struct{}
	now    func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

type memZSet struct {
	members   map[string]float64
	expiresAt time.Time
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memEntry),
		zsets:  make(map[string]*memZSet),
		lists:  make(map[string][]string),
		notify: make(chan struct{}),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Used by tests that exercise expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

func (m *Memory) expired(at time.Time) bool {
	return !at.IsZero() && !m.now().Before(at)
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return m.now().Add(ttl)
}

// lookup returns a live entry, dropping it when expired. Caller holds mu.
func (m *Memory) lookup(key string) (memEntry, bool) {
	e, ok := m.values[key]
	if !ok {
		return memEntry{}, false
	}

	if m.expired(e.expiresAt) {
		delete(m.values, key)
		return memEntry{}, false
	}

	return e, true
}

// zset returns a live sorted set, creating it when create is set. Caller holds mu.
func (m *Memory) zset(key string, create bool) *memZSet {
	z, ok := m.zsets[key]
	if ok && m.expired(z.expiresAt) {
		delete(m.zsets, key)

		ok = false
	}

	if !ok {
		if !create {
			return nil
		}

		z = &memZSet{members: make(map[string]float64)}
		m.zsets[key] = z
	}

	return z
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)

	return e.value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}

	return nil
}

func (m *Memory) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)

	var current int64

	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %s: %w", key, err)
		}

		current = parsed
	} else {
		e.expiresAt = m.deadline(ttl)
	}

	current += delta
	e.value = strconv.FormatInt(current, 10)
	m.values[key] = e

	return current, nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}

	m.values[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}

	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.values, key)
		delete(m.zsets, key)
		delete(m.lists, key)
	}

	return nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.lookup(key); ok {
		e.expiresAt = m.deadline(ttl)
		m.values[key] = e
	}

	if z := m.zset(key, false); z != nil {
		z.expiresAt = m.deadline(ttl)
	}

	return nil
}

func (m *Memory) ZAddNX(_ context.Context, key, member string, score float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, true)
	if _, ok := z.members[member]; ok {
		return false, nil
	}

	z.members[member] = score

	return true, nil
}

func (m *Memory) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if z := m.zset(key, false); z != nil {
		for _, member := range members {
			delete(z.members, member)
		}
	}

	return nil
}

func (m *Memory) ZRemRangeByScore(_ context.Context, key string, maxScore float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, false)
	if z == nil {
		return nil
	}

	for member, score := range z.members {
		if score <= maxScore {
			delete(z.members, member)
		}
	}

	return nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, false)
	if z == nil {
		return 0, nil
	}

	return int64(len(z.members)), nil
}

func (m *Memory) ZMinScore(_ context.Context, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, false)
	if z == nil || len(z.members) == 0 {
		return 0, false, nil
	}

	first := true

	var lowest float64

	for _, score := range z.members {
		if first || score < lowest {
			lowest = score
			first = false
		}
	}

	return lowest, true, nil
}

func (m *Memory) ZTrimOldest(_ context.Context, key string, keep int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, false)
	if z == nil || int64(len(z.members)) <= keep {
		return nil
	}

	ranked := z.ranked()
	for _, member := range ranked[:int64(len(ranked))-keep] {
		delete(z.members, member)
	}

	return nil
}

func (m *Memory) ZIncrBy(_ context.Context, key, member string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, true)
	z.members[member] += delta

	return nil
}

func (m *Memory) ZTop(_ context.Context, key string, n int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z := m.zset(key, false)
	if z == nil {
		return nil, nil
	}

	ranked := z.ranked()

	out := make([]string, 0, n)
	for i := len(ranked) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, ranked[i])
	}

	return out, nil
}

// ranked returns members in ascending score order, ties broken by member.
func (z *memZSet) ranked() []string {
	members := make([]string, 0, len(z.members))
	for member := range z.members {
		members = append(members, member)
	}

	sort.Slice(members, func(i, j int) bool {
		si, sj := z.members[members[i]], z.members[members[j]]
		if si != sj {
			return si < sj
		}

		return members[i] < members[j]
	})

	return members
}

func (m *Memory) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range values {
		m.lists[key] = append([]string{v}, m.lists[key]...)
	}

	close(m.notify)
	m.notify = make(chan struct{})

	return nil
}

func (m *Memory) BRPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()

		if l := m.lists[key]; len(l) > 0 {
			v := l[len(l)-1]
			m.lists[key] = l[:len(l)-1]
			m.mu.Unlock()

			return v, true, nil
		}

		wait := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("brpop %s: %w", key, ctx.Err())
		case <-timer.C:
			return "", false, nil
		case <-wait:
		}
	}
}

func (m *Memory) Ping(_ context.Context) error {
	return nil
}

var _ Backend = (*Memory)(nil)
