package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests. TTLs are honored against an
// injectable clock so expiry behavior can be tested without sleeping.
type Memory struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	zsets map[string]map[string]float64
	now   func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an in-memory Store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-memory Store with a custom clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		data:  make(map[string]memoryEntry),
		zsets: make(map[string]map[string]float64),
		now:   now,
	}
}

// expired reports whether the entry is past its TTL. Caller holds mu.
func (m *Memory) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.expired(e) {
		delete(m.data, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.zsets, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.expired(e) {
		delete(m.data, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.expired(e) {
		e = memoryEntry{}
	}
	var n int64
	if len(e.value) > 0 {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			// Same contract as Redis INCR on a non-integer value.
			return 0, fmt.Errorf("kv: value at %s is not an integer", key)
		}
		n = parsed
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	m.data[key] = e
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.data[key] = e
	return nil
}

func (m *Memory) ZAdd(_ context.Context, key string, members ...Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	for _, mem := range members {
		set[mem.Member] = mem.Score
	}
	return nil
}

func (m *Memory) ZRange(_ context.Context, key string, start, stop int64, rev bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.zsets[key]
	members := make([]Member, 0, len(set))
	for member, score := range set {
		members = append(members, Member{Score: score, Member: member})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			if rev {
				return members[i].Score > members[j].Score
			}
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, 0, stop-start+1)
	for _, mem := range members[start : stop+1] {
		out = append(out, mem.Member)
	}
	return out, nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.zsets[key])), nil
}

func (m *Memory) Ping(context.Context) error { return nil }
