package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// replayEntry is a claimed key, with its response once completed
type replayEntry struct {
	resp      json.RawMessage
	done      bool
	expiresAt time.Time
}

// InMemoryReplayStore implements ReplayStore using an in-memory map.
// Entries are not shared between processes.
type InMemoryReplayStore struct {
	mu        sync.Mutex
	entries   map[string]replayEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryReplayStore creates a new in-memory replay store.
// It starts a background goroutine that drops expired entries every interval.
func NewInMemoryReplayStore(interval time.Duration) *InMemoryReplayStore {
	if interval <= 0 {
		interval = time.Minute
	}
	store := &InMemoryReplayStore{
		entries:  make(map[string]replayEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop(interval)

	return store
}

// Claim reserves key unless a live entry already holds it
func (s *InMemoryReplayStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, exists := s.entries[key]; exists && now.Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = replayEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// Load returns the completed response for key
func (s *InMemoryReplayStore) Load(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || !s.now().Before(e.expiresAt) || !e.done {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), e.resp...), true, nil
}

// Complete stores the response for key and restarts its TTL
func (s *InMemoryReplayStore) Complete(_ context.Context, key string, resp json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = replayEntry{
		resp:      append(json.RawMessage(nil), resp...),
		done:      true,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Release drops key so the operation may run again
func (s *InMemoryReplayStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryReplayStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryReplayStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries from the store
func (s *InMemoryReplayStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries in the store
func (s *InMemoryReplayStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ ReplayStore = (*InMemoryReplayStore)(nil)
