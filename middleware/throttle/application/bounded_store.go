package application

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// StoreBusyError indica que não houve vaga para chamar o store a tempo.
var StoreBusyError = errs.Class("counter store busy")

// BoundedStore limita as chamadas a um CounterStore: no máximo as vagas do
// pool em voo e cada chamada com CallTimeout. Assim o engine nunca fica preso
// num backend lento; o erro cai no OnStoreError do Engine.
type BoundedStore struct {
	Next        domain.CounterStore
	Slots       ConcurrencyService
	CallTimeout time.Duration
}

var (
	_ domain.CounterStore       = (*BoundedStore)(nil)
	_ domain.CounterIncrementer = (*BoundedStore)(nil)
)

func (b *BoundedStore) begin(ctx context.Context) (context.Context, func(), error) {
	release, ok := b.Slots.Acquire(ctx)
	if !ok {
		return nil, nil, StoreBusyError.New("no slot available")
	}
	if b.CallTimeout <= 0 {
		return ctx, release, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, b.CallTimeout)
	return callCtx, func() {
		cancel()
		release()
	}, nil
}

func (b *BoundedStore) Save(ctx context.Context, key string, c domain.Counter, ttl time.Duration) error {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	return b.Next.Save(ctx, key, c, ttl)
}

func (b *BoundedStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return false, err
	}
	defer done()
	return b.Next.Exists(ctx, key)
}

func (b *BoundedStore) Get(ctx context.Context, key string) (domain.Counter, bool, error) {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return domain.Counter{}, false, err
	}
	defer done()
	return b.Next.Get(ctx, key)
}

func (b *BoundedStore) Remove(ctx context.Context, key string) error {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	return b.Next.Remove(ctx, key)
}

func (b *BoundedStore) Clear(ctx context.Context) error {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	return b.Next.Clear(ctx)
}

// Increment repassa o incremento atômico quando o store de baixo oferece;
// senão faz get/save dentro da mesma vaga.
func (b *BoundedStore) Increment(ctx context.Context, key string, p domain.Period, now time.Time) (domain.Counter, error) {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return domain.Counter{}, err
	}
	defer done()

	if inc, ok := b.Next.(domain.CounterIncrementer); ok {
		return inc.Increment(ctx, key, p, now)
	}
	current, found, err := b.Next.Get(ctx, key)
	if err != nil {
		return domain.Counter{}, err
	}
	next, ttl := current.Next(found, p, now)
	return next, b.Next.Save(ctx, key, next, ttl)
}
