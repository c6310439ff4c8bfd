package infra

import (
	"context"
	"sync"

	"github.com/zeebo/errs"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// MemoryThrottleLogger guarda as últimas entradas e contagens por período e
// por cliente. Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicado para produção.
type MemoryThrottleLogger struct {
	mu         sync.Mutex
	entries    []domain.LogEntry
	maxEntries int
	total      int64
	byPeriod   map[domain.Period]int64
	byClient   map[string]int64

	trackClients bool
}

var _ domain.ThrottleLogger = (*MemoryThrottleLogger)(nil)

type MemoryLoggerOption func(*MemoryThrottleLogger)

func WithTrackClients(track bool) MemoryLoggerOption {
	return func(l *MemoryThrottleLogger) { l.trackClients = track }
}

// WithMaxEntries limita quantas entradas ficam guardadas (as mais antigas
// saem primeiro).
func WithMaxEntries(n int) MemoryLoggerOption {
	return func(l *MemoryThrottleLogger) { l.maxEntries = n }
}

func NewMemoryThrottleLogger(opts ...MemoryLoggerOption) *MemoryThrottleLogger {
	l := &MemoryThrottleLogger{
		maxEntries: 1000,
		byPeriod:   make(map[domain.Period]int64),
		byClient:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryThrottleLogger) Log(_ context.Context, e domain.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.byPeriod[e.Period]++
	if l.trackClients {
		l.byClient[e.Identity.ClientKey]++
	}

	if l.maxEntries <= 0 {
		return nil
	}
	if len(l.entries) >= l.maxEntries {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryThrottleLogger) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *MemoryThrottleLogger) Entries() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.LogEntry(nil), l.entries...)
}

func (l *MemoryThrottleLogger) ByPeriod() map[domain.Period]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.Period]int64, len(l.byPeriod))
	for k, v := range l.byPeriod {
		out[k] = v
	}
	return out
}

func (l *MemoryThrottleLogger) ByClient() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.byClient))
	for k, v := range l.byClient {
		out[k] = v
	}
	return out
}

// MultiLogger repassa cada entrada para todos os loggers; um erro não impede
// os demais.
type MultiLogger []domain.ThrottleLogger

func (m MultiLogger) Log(ctx context.Context, e domain.LogEntry) error {
	var group errs.Group
	for _, l := range m {
		if l != nil {
			group.Add(l.Log(ctx, e))
		}
	}
	return group.Err()
}
