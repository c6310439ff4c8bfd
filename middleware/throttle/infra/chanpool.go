package infra

import (
	"context"
	"sync"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// ChanPool é um semáforo sobre channel: cada vaga é um item no buffer.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria um pool com `max` vagas (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max <= 0 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

// Acquire espera uma vaga até ctx acabar. O release devolvido pode ser
// chamado mais de uma vez; só a primeira libera.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse é o número de vagas ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.sem) }

// Cap é o total de vagas.
func (p *ChanPool) Cap() int { return cap(p.sem) }
