// Package cache implements the two-tier url→date cache: a process-local map in
// front of Redis.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LocalStore is a bounded, TTL-aware in-process map. The oldest insert is
// evicted once capacity is reached.
type LocalStore struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type localEntry struct {
	key      string
	value    string
	storedAt time.Time
}

// NewLocalStore constructs a LocalStore. A capacity <= 0 means unbounded and
// a ttl <= 0 means entries never expire.
func NewLocalStore(capacity int, ttl time.Duration) *LocalStore {
	return &LocalStore{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the stored value when present and not expired.
func (s *LocalStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*localEntry)
	if s.ttl > 0 && s.now().Sub(entry.storedAt) >= s.ttl {
		s.order.Remove(elem)
		delete(s.entries, key)
		return "", false
	}
	return entry.value, true
}

// Set stores value under key, resetting its age.
func (s *LocalStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*localEntry)
		entry.value = value
		entry.storedAt = s.now()
		s.order.MoveToBack(elem)
		return
	}
	s.entries[key] = s.order.PushBack(&localEntry{key: key, value: value, storedAt: s.now()})
	for s.capacity > 0 && s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*localEntry).key)
	}
}

// Len reports the number of stored entries, including expired ones not yet read.
func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
