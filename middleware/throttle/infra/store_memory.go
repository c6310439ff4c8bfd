package infra

import (
	"context"
	"sync"
	"time"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// MemoryCounterStore guarda contadores num map protegido por mutex, com
// expiração por chave e limpeza periódica.
//
// Increment é atômico (feito sob o mutex), então o engine não perde
// incrementos sob concorrência. Serve para um processo só.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]memoryEntry
	cleanupEvery time.Duration
	now          func() time.Time
}

type memoryEntry struct {
	counter   domain.Counter
	expiresAt time.Time
}

var (
	_ domain.CounterStore       = (*MemoryCounterStore)(nil)
	_ domain.CounterIncrementer = (*MemoryCounterStore)(nil)
)

type MemoryStoreOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado para expirar chaves (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryStoreOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]memoryEntry),
		cleanupEvery: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *MemoryCounterStore) Save(_ context.Context, key string, c domain.Counter, ttl time.Duration) error {
	if ttl <= 0 {
		return StoreError.New("non-positive ttl %s for %q", ttl, key)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{counter: c, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryCounterStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.lookup(key, s.now())
	return ok, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (domain.Counter, bool, error) {
	c, ok := s.lookup(key, s.now())
	return c, ok, nil
}

func (s *MemoryCounterStore) lookup(key string, now time.Time) (domain.Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		return domain.Counter{}, false
	}
	return ent.counter, true
}

func (s *MemoryCounterStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryCounterStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Increment aplica domain.Counter.Next sob o mutex.
func (s *MemoryCounterStore) Increment(_ context.Context, key string, p domain.Period, now time.Time) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, found := s.entries[key]
	if found && !now.Before(ent.expiresAt) {
		found = false
	}
	next, ttl := ent.counter.Next(found, p, now)
	s.entries[key] = memoryEntry{counter: next, expiresAt: now.Add(ttl)}
	return next, nil
}

// Len é o número de chaves guardadas, inclusive as vencidas ainda não limpas.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove as chaves vencidas.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves vencidas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
