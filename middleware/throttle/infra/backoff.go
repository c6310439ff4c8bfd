package infra

import (
	"context"
	"time"
)

// ExponentialBackoff espaça novas tentativas depois de uma falha
// (conflito de transação no badger).
type ExponentialBackoff struct {
	Delay time.Duration // atraso atual, normalmente não configurado
	Max   time.Duration
	Min   time.Duration
}

func (e *ExponentialBackoff) init() {
	if e.Max == 0 {
		e.Max = 100 * time.Millisecond
	}
	if e.Min == 0 {
		e.Min = time.Millisecond
	}
}

// Wait dorme um tempo que dobra a cada chamada, até Max.
func (e *ExponentialBackoff) Wait(ctx context.Context) error {
	e.init()
	if e.Delay == 0 {
		e.Delay = e.Min
	} else {
		e.Delay *= 2
	}
	if e.Delay > e.Max {
		e.Delay = e.Max
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	t := time.NewTimer(e.Delay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Maxed indica que o atraso chegou no máximo e não vale tentar de novo.
func (e *ExponentialBackoff) Maxed() bool {
	e.init()
	return e.Delay == e.Max
}
