// Package store provides a generic in-memory store with per-entry TTL
// and background cleanup. The engine uses it to retain recently ended
// calls long enough to absorb late signaling for them.
package store

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired() bool {
	return time.Now().After(e.expiresAt)
}

// TTLStore holds values until their TTL lapses. A cleanup goroutine
// sweeps expired entries on a fixed interval.
type TTLStore[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]*entry[V]
	stopCh   chan struct{}
	interval time.Duration
	onEvict  func(key K, value V)
}

// NewTTLStore creates a store sweeping every cleanupInterval. onEvict,
// when non-nil, runs for entries removed by the sweep (not by Delete).
func NewTTLStore[K comparable, V any](cleanupInterval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:    make(map[K]*entry[V]),
		stopCh:   make(chan struct{}),
		interval: cleanupInterval,
		onEvict:  onEvict,
	}
	go s.cleanupLoop()
	return s
}

// Set stores a value for ttl.
func (s *TTLStore[K, V]) Set(key K, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get returns the value and true when present and unexpired.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	if !ok || e.expired() {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether the key is present and unexpired.
func (s *TTLStore[K, V]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return ok && !e.expired()
}

// Delete removes a key, reporting whether it was present.
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		return true
	}
	return false
}

// Len counts unexpired entries.
func (s *TTLStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.items {
		if !e.expired() {
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (s *TTLStore[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[K]*entry[V])
}

// Close stops the cleanup goroutine and clears the store.
func (s *TTLStore[K, V]) Close() {
	close(s.stopCh)
	s.Clear()
}

func (s *TTLStore[K, V]) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *TTLStore[K, V]) cleanup() {
	s.mu.Lock()
	var evicted []struct {
		key   K
		value V
	}
	for key, e := range s.items {
		if e.expired() {
			evicted = append(evicted, struct {
				key   K
				value V
			}{key, e.value})
			delete(s.items, key)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	if onEvict != nil {
		for _, e := range evicted {
			onEvict(e.key, e.value)
		}
	}
}
