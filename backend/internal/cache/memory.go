package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryStore is an in-process Store for single-instance deployments and
// tests. Expiry is enforced lazily on read.
type memoryStore struct {
	mu      sync.Mutex
	strings map[string]memEntry
	sets    map[string]memSet
	lists   map[string]memList

	now func() time.Time
}

type memEntry struct {
	value    []byte
	expireAt time.Time // zero means no expiry
}

type memSet struct {
	members  map[string]struct{}
	expireAt time.Time
}

type memList struct {
	values   [][]byte
	expireAt time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{
		strings: make(map[string]memEntry),
		sets:    make(map[string]memSet),
		lists:   make(map[string]memList),
		now:     time.Now,
	}
}

func expired(expireAt, now time.Time) bool {
	return !expireAt.IsZero() && !expireAt.After(now)
}

func (s *memoryStore) expireAtFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.strings[key]
	if !ok || expired(e.expireAt, s.now()) {
		delete(s.strings, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.strings[key] = memEntry{value: v, expireAt: s.expireAtFor(ttl)}
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.strings[key]; ok && !expired(e.expireAt, s.now()) {
		return false, nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.strings[key] = memEntry{value: v, expireAt: s.expireAtFor(ttl)}
	return true, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.strings, k)
		delete(s.sets, k)
		delete(s.lists, k)
	}
	return nil
}

func (s *memoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok || expired(set.expireAt, s.now()) {
		set = memSet{members: make(map[string]struct{})}
	}
	for _, m := range members {
		set.members[m] = struct{}{}
	}
	s.sets[key] = set
	return nil
}

func (s *memoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok || expired(set.expireAt, s.now()) {
		delete(s.sets, key)
		return nil
	}
	for _, m := range members {
		delete(set.members, m)
	}
	if len(set.members) == 0 {
		delete(s.sets, key)
	} else {
		s.sets[key] = set
	}
	return nil
}

func (s *memoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok || expired(set.expireAt, s.now()) {
		delete(s.sets, key)
		return nil, nil
	}
	out := make([]string, 0, len(set.members))
	for m := range set.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.expireAtFor(ttl)
	if e, ok := s.strings[key]; ok {
		e.expireAt = at
		s.strings[key] = e
	}
	if set, ok := s.sets[key]; ok {
		set.expireAt = at
		s.sets[key] = set
	}
	if l, ok := s.lists[key]; ok {
		l.expireAt = at
		s.lists[key] = l
	}
	return nil
}

func (s *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var keys []string
	for k, e := range s.strings {
		if strings.HasPrefix(k, prefix) && !expired(e.expireAt, now) {
			keys = append(keys, k)
		}
	}
	for k, set := range s.sets {
		if strings.HasPrefix(k, prefix) && !expired(set.expireAt, now) {
			keys = append(keys, k)
		}
	}
	for k, l := range s.lists {
		if strings.HasPrefix(k, prefix) && !expired(l.expireAt, now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) RPush(_ context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[key]
	if !ok || expired(l.expireAt, s.now()) {
		l = memList{}
	}
	for _, v := range values {
		cp := make([]byte, len(v))
		copy(cp, v)
		l.values = append(l.values, cp)
	}
	s.lists[key] = l
	return nil
}

func (s *memoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[key]
	if !ok || expired(l.expireAt, s.now()) {
		delete(s.lists, key)
		return nil
	}
	n := int64(len(l.values))
	from, to := normalizeRange(start, stop, n)
	if from > to {
		delete(s.lists, key)
		return nil
	}
	l.values = l.values[from : to+1]
	s.lists[key] = l
	return nil
}

func (s *memoryStore) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[key]
	if !ok || expired(l.expireAt, s.now()) {
		return nil, nil
	}
	n := int64(len(l.values))
	from, to := normalizeRange(start, stop, n)
	if from > to {
		return nil, nil
	}
	out := make([][]byte, 0, to-from+1)
	for _, v := range l.values[from : to+1] {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out, nil
}

// normalizeRange resolves redis-style negative indexes against a list of
// length n and clamps both ends into bounds.
func normalizeRange(start, stop, n int64) (int64, int64) {
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
