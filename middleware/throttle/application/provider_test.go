package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	p     *domain.Policy
	err   error
	reads int
}

func (r *fakeRepo) Save(_ context.Context, _ string, p *domain.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
	return nil
}

func (r *fakeRepo) Get(context.Context, string) (*domain.Policy, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return nil, false, r.err
	}
	return r.p, r.p != nil, nil
}

func TestStaticPolicy(t *testing.T) {
	p := ipPolicy(domain.Rate{Period: domain.Second, Limit: 1})
	got, err := StaticPolicy{P: p}.Policy(context.Background())
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestRepositoryProvider_ReadThrough(t *testing.T) {
	repo := &fakeRepo{}
	prov := NewRepositoryProvider(repo, 0)
	ctx := context.Background()

	got, err := prov.Policy(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, uint64(1), prov.Version())

	p := ipPolicy(domain.Rate{Period: domain.Second, Limit: 1})
	require.NoError(t, repo.Save(ctx, domain.PolicyKey, p))

	got, err = prov.Policy(ctx)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, uint64(2), prov.Version())
	assert.Equal(t, 2, repo.reads)
}

func TestRepositoryProvider_RefreshInterval(t *testing.T) {
	clock := newTestClock()
	repo := &fakeRepo{p: ipPolicy(domain.Rate{Period: domain.Second, Limit: 1})}
	prov := NewRepositoryProvider(repo, time.Minute)
	prov.Now = clock.Now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := prov.Policy(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.reads)

	clock.Advance(time.Minute)
	_, err := prov.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reads)

	prov.Invalidate()
	_, err = prov.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.reads)
	assert.Equal(t, uint64(3), prov.Version())
}

func TestRepositoryProvider_KeepsSnapshotOnError(t *testing.T) {
	p := ipPolicy(domain.Rate{Period: domain.Second, Limit: 1})
	repo := &fakeRepo{p: p}
	prov := NewRepositoryProvider(repo, 0)
	ctx := context.Background()

	_, err := prov.Policy(ctx)
	require.NoError(t, err)

	repo.err = errStoreDown
	got, err := prov.Policy(ctx)
	require.Error(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, uint64(1), prov.Version())

	empty := NewRepositoryProvider(repo, 0)
	got, err = empty.Policy(ctx)
	require.Error(t, err)
	assert.Nil(t, got)
}
