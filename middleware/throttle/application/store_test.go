package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// fakeStore é um store get/save (sem CounterIncrementer) que conta chamadas.
type fakeStore struct {
	mu       sync.Mutex
	counters map[string]domain.Counter
	ttls     map[string]time.Duration
	calls    int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counters: make(map[string]domain.Counter),
		ttls:     make(map[string]time.Duration),
	}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) Save(_ context.Context, key string, c domain.Counter, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.counters[key] = c
	s.ttls[key] = ttl
	return nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.counters[key]
	return ok, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (domain.Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.Counter{}, false, s.err
	}
	c, ok := s.counters[key]
	return c, ok, nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	delete(s.counters, key)
	return s.err
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.counters = make(map[string]domain.Counter)
	return s.err
}

func (s *fakeStore) counter(key string) domain.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// incrementingStore adiciona a capacidade atômica ao fakeStore.
type incrementingStore struct {
	*fakeStore
	increments int
}

func (s *incrementingStore) Increment(_ context.Context, key string, p domain.Period, now time.Time) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments++
	if s.err != nil {
		return domain.Counter{}, s.err
	}
	current, found := s.counters[key]
	next, ttl := current.Next(found, p, now)
	s.counters[key] = next
	s.ttls[key] = ttl
	return next, nil
}

// testClock é um relógio manual para os testes.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
