package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zeebo/errs"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// EvaluationError é a classe dos diagnósticos devolvidos junto com o veredito.
var EvaluationError = errs.Class("throttle evaluation")

// StoreErrorMode define o que fazer quando o store de contadores falha.
type StoreErrorMode int

const (
	// FailOpen permite a requisição: a disponibilidade do serviço protegido vale
	// mais que a cota exata. É o padrão.
	FailOpen StoreErrorMode = iota
	// FailClosed rejeita a requisição no período que falhou.
	FailClosed
)

// failClosedRetryAfter é o Retry-After sugerido quando FailClosed rejeita.
const failClosedRetryAfter = time.Second

// Engine avalia uma identidade contra todas as janelas da política.
//
// Não há lock entre requisições: a atomicidade do incremento é do store
// (domain.CounterIncrementer). Stores só com get/save aceitam a corrida de +1.
type Engine struct {
	Store        domain.CounterStore
	KeyPrefix    string
	OnStoreError StoreErrorMode
	Now          func() time.Time

	matchers atomic.Pointer[policyMatchers]
}

// matchersFor devolve os padrões compilados da política, recompilando só quando
// a política é outra.
func (e *Engine) matchersFor(p *domain.Policy) *policyMatchers {
	if m := e.matchers.Load(); m != nil && m.policy == p {
		return m
	}
	m := compileMatchers(p)
	e.matchers.Store(m)
	return m
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate decide se a requisição passa.
//
// Uma rejeição em qualquer período interrompe a avaliação, exceto com
// StackBlockedRequests: aí os períodos seguintes (mais finos) ainda são
// incrementados e o veredito é a primeira rejeição. Incrementos já feitos nunca
// são desfeitos. O erro, quando não nil, é diagnóstico: o veredito devolvido
// já reflete OnStoreError.
func (e *Engine) Evaluate(ctx context.Context, p *domain.Policy, id domain.RequestIdentity) (domain.Verdict, error) {
	if !p.Enabled() {
		return domain.Allow(), nil
	}
	matchers := e.matchersFor(p)
	if matchers.whitelisted(id) {
		return domain.Allow(), nil
	}
	if e.Store == nil {
		return domain.Allow(), EvaluationError.New("no counter store")
	}

	now := e.now()
	rates := ResolveDefaultRates(p)
	if p.StackBlockedRequests {
		// todas as requisições, inclusive as rejeitadas, empilham na ordem
		// semana, dia, hora, minuto, segundo
		reverseRates(rates)
	}

	var rejected *domain.Verdict
	for _, rate := range rates {
		limit := matchers.applyRules(id, rate.Period, rate.Limit)
		if limit <= 0 {
			continue
		}

		key := ComputeKey(e.KeyPrefix, p, id, rate.Period)
		counter, err := e.process(ctx, key, rate.Period, now)
		if err != nil {
			err = EvaluationError.New("period %s: %w", rate.Period, err)
			if rejected != nil {
				return *rejected, err
			}
			if e.OnStoreError == FailClosed {
				return domain.Verdict{
					Period:     rate.Period,
					Limit:      limit,
					RetryAfter: failClosedRetryAfter,
					Key:        key,
				}, err
			}
			return domain.Allow(), err
		}

		if counter.Stale(rate.Period, now) || counter.TotalRequests <= limit || rejected != nil {
			continue
		}

		v := domain.Verdict{
			Period:     rate.Period,
			Limit:      limit,
			RetryAfter: RetryAfter(counter, rate.Period, now),
			Counter:    counter,
			Key:        key,
		}
		if !p.StackBlockedRequests {
			return v, nil
		}
		// empilhando: a rejeição mais grossa vale, mas os períodos menores
		// continuam contando
		rejected = &v
	}

	if rejected != nil {
		return *rejected, nil
	}
	return domain.Allow(), nil
}

// process avança o contador da chave.
func (e *Engine) process(ctx context.Context, key string, period domain.Period, now time.Time) (domain.Counter, error) {
	if inc, ok := e.Store.(domain.CounterIncrementer); ok {
		return inc.Increment(ctx, key, period, now)
	}

	current, found, err := e.Store.Get(ctx, key)
	if err != nil {
		return domain.Counter{}, err
	}
	next, ttl := current.Next(found, period, now)
	if err := e.Store.Save(ctx, key, next, ttl); err != nil {
		return domain.Counter{}, err
	}
	return next, nil
}

// RetryAfter é o tempo até o fim da janela do contador, nunca negativo.
func RetryAfter(c domain.Counter, p domain.Period, now time.Time) time.Duration {
	d := c.WindowEnd(p).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func reverseRates(rates []domain.Rate) {
	for i, j := 0, len(rates)-1; i < j; i, j = i+1, j-1 {
		rates[i], rates[j] = rates[j], rates[i]
	}
}
