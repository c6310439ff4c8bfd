package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// PolicyProvider entrega a política vigente para cada avaliação.
//
// Um retorno (nil, nil) significa "sem política": tudo é permitido.
type PolicyProvider interface {
	Policy(ctx context.Context) (*domain.Policy, error)
}

// StaticPolicy é uma política fixa, definida no código.
type StaticPolicy struct {
	P *domain.Policy
}

func (s StaticPolicy) Policy(context.Context) (*domain.Policy, error) { return s.P, nil }

type policySnapshot struct {
	policy   *domain.Policy
	version  uint64
	loadedAt time.Time
}

// RepositoryProvider lê a política de um domain.PolicyRepository.
//
// Contrato de recarga: com Refresh <= 0 cada chamada lê o repositório; com
// Refresh > 0 a última leitura é reaproveitada até ficar mais velha que Refresh.
// Cada leitura bem sucedida publica um snapshot novo com Version maior. Se a
// leitura falhar e já existir snapshot, ele continua valendo e o erro é
// devolvido como diagnóstico.
type RepositoryProvider struct {
	Repo    domain.PolicyRepository
	Key     string
	Refresh time.Duration
	Now     func() time.Time

	mu       sync.Mutex
	snapshot atomic.Pointer[policySnapshot]
}

func NewRepositoryProvider(repo domain.PolicyRepository, refresh time.Duration) *RepositoryProvider {
	return &RepositoryProvider{Repo: repo, Key: domain.PolicyKey, Refresh: refresh}
}

func (r *RepositoryProvider) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RepositoryProvider) Policy(ctx context.Context) (*domain.Policy, error) {
	if r.Refresh > 0 {
		if snap := r.snapshot.Load(); snap != nil && r.now().Sub(snap.loadedAt) < r.Refresh {
			return snap.policy, nil
		}
	}
	return r.Reload(ctx)
}

// Reload força a leitura do repositório.
func (r *RepositoryProvider) Reload(ctx context.Context) (*domain.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.Key
	if key == "" {
		key = domain.PolicyKey
	}

	prev := r.snapshot.Load()
	p, found, err := r.Repo.Get(ctx, key)
	if err != nil {
		if prev != nil {
			return prev.policy, EvaluationError.New("reload policy: %w", err)
		}
		return nil, EvaluationError.New("load policy: %w", err)
	}
	if !found {
		p = nil
	}

	next := &policySnapshot{policy: p, loadedAt: r.now(), version: 1}
	if prev != nil {
		next.version = prev.version + 1
	}
	r.snapshot.Store(next)
	return p, nil
}

// Version é a versão do snapshot atual (0 antes da primeira leitura).
func (r *RepositoryProvider) Version() uint64 {
	if snap := r.snapshot.Load(); snap != nil {
		return snap.version
	}
	return 0
}

// Invalidate faz a próxima chamada de Policy ler o repositório.
func (r *RepositoryProvider) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap := r.snapshot.Load(); snap != nil {
		stale := *snap
		stale.loadedAt = time.Time{}
		r.snapshot.Store(&stale)
	}
}
