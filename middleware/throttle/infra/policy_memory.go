package infra

import (
	"context"
	"sync"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// MemoryPolicyRepository guarda políticas em memória. Save e Get trabalham
// com cópias, então quem chamou pode alterar a sua sem afetar a guardada.
type MemoryPolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*domain.Policy
}

var _ domain.PolicyRepository = (*MemoryPolicyRepository)(nil)

func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{policies: make(map[string]*domain.Policy)}
}

func (r *MemoryPolicyRepository) Save(_ context.Context, key string, p *domain.Policy) error {
	if err := p.Validate(); err != nil {
		return PolicyError.Wrap(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[key] = p.Clone()
	return nil
}

func (r *MemoryPolicyRepository) Get(_ context.Context, key string) (*domain.Policy, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[key]
	return p.Clone(), ok, nil
}
