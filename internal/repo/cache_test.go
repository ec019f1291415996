package repo

import (
	"context"
	"sync"
	"time"

	"github.com/miradorstack/incident-autopilot/internal/cache"
)

type stubCache struct {
	mu    sync.Mutex
	store   map[string][]byte
	ttls    map[string]time.Duration
	deletes int
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	delete(s.ttls, key)
	s.deletes++
	return nil
}

func (s *stubCache) Close() error { return nil }

func (s *stubCache) only() (string, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ttl := range s.ttls {
		return key, ttl, len(s.ttls) == 1
	}
	return "", 0, false
}

func (s *stubCache) deleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}
