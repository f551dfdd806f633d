package utils

import (
	"sync"
	"time"
)

type ttlEntry struct {
	n         int64
	owner     string
	expiresAt time.Time
}

// ttlStore is the single-instance stand-in for the Redis keys used by claim
// locks, token revocation and registration throttling.
type ttlStore struct {
	mu sync.Mutex
	m  map[string]ttlEntry
}

var localTTL = &ttlStore{m: map[string]ttlEntry{}}

func (s *ttlStore) liveLocked(key string, now time.Time) (ttlEntry, bool) {
	e, ok := s.m[key]
	if !ok {
		return ttlEntry{}, false
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(s.m, key)
		return ttlEntry{}, false
	}
	return e, true
}

// setNX stores key unless a live entry exists; it reports whether it stored.
func (s *ttlStore) setNX(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if _, ok := s.liveLocked(key, now); ok {
		return false
	}
	s.m[key] = ttlEntry{n: 1, expiresAt: now.Add(ttl)}
	return true
}

// setNXOwned is setNX with an owner token that delOwned must present.
func (s *ttlStore) setNXOwned(key, owner string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if _, ok := s.liveLocked(key, now); ok {
		return false
	}
	s.m[key] = ttlEntry{n: 1, owner: owner, expiresAt: now.Add(ttl)}
	return true
}

// delOwned removes key only while owner still holds it.
func (s *ttlStore) delOwned(key, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key, time.Now())
	if !ok || e.owner != owner {
		return false
	}
	delete(s.m, key)
	return true
}

// set stores key unconditionally.
func (s *ttlStore) set(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = ttlEntry{n: 1, expiresAt: time.Now().Add(ttl)}
}

// incr increments key, starting a new ttl window when absent.
func (s *ttlStore) incr(key string, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e, ok := s.liveLocked(key, now)
	if !ok {
		e = ttlEntry{expiresAt: now.Add(ttl)}
	}
	e.n++
	s.m[key] = e
	return e.n
}

func (s *ttlStore) get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.liveLocked(key, time.Now())
	return e.n
}

func (s *ttlStore) exists(key string) bool {
	return s.get(key) > 0
}

func (s *ttlStore) del(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}
