package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// memBackend is the in-memory Backend. Prod runs Redis; this one backs
// unit tests and single-node dev. TTLs honor the injected clock.
type memBackend struct {
	mu    sync.RWMutex
	kv    map[string]memVal
	sets  map[string]map[string]struct{}
	hash  map[string]map[string]string
	lists map[string][]string
	zsets map[string]map[string]float64
	clock func() time.Time
}

type memVal struct {
	v        string
	expireAt time.Time // zero = no expiry
}

func NewMemBackend() Backend { return NewMemBackendWithClock(time.Now) }

func NewMemBackendWithClock(clock func() time.Time) Backend {
	return &memBackend{
		kv:    make(map[string]memVal),
		sets:  make(map[string]map[string]struct{}),
		hash:  make(map[string]map[string]string),
		lists: make(map[string][]string),
		zsets: make(map[string]map[string]float64),
		clock: clock,
	}
}

func (m *memBackend) getLocked(key string) (string, bool) {
	e, ok := m.kv[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && !m.clock().Before(e.expireAt) {
		delete(m.kv, key)
		return "", false
	}
	return e.v, true
}

func (m *memBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memVal{v: value}
	if ttl > 0 {
		e.expireAt = m.clock().Add(ttl)
	}
	m.kv[key] = e
	return nil
}

func (m *memBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	return v, ok, nil
}

func (m *memBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.kv, key)
		delete(m.sets, key)
		delete(m.hash, key)
		delete(m.lists, key)
		delete(m.zsets, key)
	}
	return nil
}

func (m *memBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.getLocked(key); ok {
		return true, nil
	}
	if _, ok := m.sets[key]; ok {
		return true, nil
	}
	if _, ok := m.hash[key]; ok {
		return true, nil
	}
	if _, ok := m.lists[key]; ok {
		return true, nil
	}
	if _, ok := m.zsets[key]; ok {
		return true, nil
	}
	return false, nil
}

func (m *memBackend) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := m.getLocked(key)
	n := parseInt64(cur) + 1
	e := m.kv[key]
	e.v = formatInt64(n)
	m.kv[key] = e
	return n, nil
}

func (m *memBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.kv[key]; ok {
		e.expireAt = m.clock().Add(ttl)
		m.kv[key] = e
	}
	return nil
}

func (m *memBackend) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *memBackend) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[key]
	for _, mem := range members {
		delete(s, mem)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *memBackend) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBackend) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *memBackend) SCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sets[key])), nil
}

func (m *memBackend) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hash[key]
	if !ok {
		h = make(map[string]string)
		m.hash[key] = h
	}
	h[field] = value
	return nil
}

func (m *memBackend) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.hash[key][field]
	return v, ok, nil
}

func (m *memBackend) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash[key]
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(m.hash, key)
	}
	return nil
}

func (m *memBackend) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		m.lists[key] = append([]string{v}, m.lists[key]...)
	}
	return nil
}

func (m *memBackend) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	n := int64(len(l))
	s, e := normRange(start, stop, n)
	if s > e {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = l[s : e+1]
	return nil
}

func (m *memBackend) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.lists[key]
	n := int64(len(l))
	s, e := normRange(start, stop, n)
	if s > e {
		return nil, nil
	}
	out := make([]string, e-s+1)
	copy(out, l[s:e+1])
	return out, nil
}

func (m *memBackend) LLen(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[key])), nil
}

func (m *memBackend) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (m *memBackend) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zsets[key]
	for _, mem := range members {
		delete(z, mem)
	}
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return nil
}

func (m *memBackend) ZPopMin(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zsets[key]
	if len(z) == 0 {
		return "", false, nil
	}
	var best string
	bestScore := 0.0
	first := true
	for mem, score := range z {
		if first || score < bestScore || (score == bestScore && mem < best) {
			best, bestScore, first = mem, score, false
		}
	}
	delete(z, best)
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return best, true, nil
}

func (m *memBackend) ZRangeByScore(_ context.Context, key string, max float64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type entry struct {
		mem   string
		score float64
	}
	var due []entry
	for mem, score := range m.zsets[key] {
		if score <= max {
			due = append(due, entry{mem, score})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].score != due[j].score {
			return due[i].score < due[j].score
		}
		return due[i].mem < due[j].mem
	})
	out := make([]string, len(due))
	for i, e := range due {
		out[i] = e.mem
	}
	return out, nil
}

func (m *memBackend) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.zsets[key])), nil
}

func (m *memBackend) Close() error { return nil }

func normRange(start, stop, n int64) (int64, int64) {
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
	return start, stop
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}
