package store

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	s := NewTTLStore[string, int](time.Minute, nil)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v, want 1, true", v, ok)
	}
	if !s.Has("a") {
		t.Error("Has(a) = false, want true")
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	if !s.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if s.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("Get(a) after delete should miss")
	}
}

func TestExpiredEntriesAreInvisible(t *testing.T) {
	s := NewTTLStore[string, int](time.Minute, nil)
	defer s.Close()

	s.Set("a", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := s.Get("a"); ok {
		t.Error("expired entry still visible via Get")
	}
	if s.Has("a") {
		t.Error("expired entry still visible via Has")
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestCleanupCallsEvictCallback(t *testing.T) {
	var mu sync.Mutex
	evicted := map[string]int{}
	s := NewTTLStore[string, int](20*time.Millisecond, func(k string, v int) {
		mu.Lock()
		evicted[k] = v
		mu.Unlock()
	})
	defer s.Close()

	s.Set("a", 1, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		_, ok := evicted["a"]
		mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("evict callback never ran")
}
