package application

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// Request é o que o adaptador de transporte entrega ao Service.
type Request struct {
	Identity  domain.RequestIdentity
	RequestID string
}

// Usage é o retrato de um contador para inspeção (admin, headers).
type Usage struct {
	Period    domain.Period
	Limit     int64
	Current   int64
	Remaining int64
	WindowEnd time.Time
}

// Service concentra a regra de aplicação do throttling.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas busca a política,
// avalia e registra rejeições.
type Service struct {
	Engine   *Engine
	Policies PolicyProvider
	Logger   domain.ThrottleLogger
	Label    string
}

func (s *Service) policy(ctx context.Context) (*domain.Policy, error) {
	if s.Policies == nil {
		return nil, nil
	}
	return s.Policies.Policy(ctx)
}

// Decide avalia a requisição. Erros são diagnósticos (falha de store, política
// ou log) e nunca mudam o veredito devolvido.
func (s *Service) Decide(ctx context.Context, req Request) (domain.Verdict, error) {
	if s == nil || s.Engine == nil {
		return domain.Allow(), nil
	}

	p, err := s.policy(ctx)
	if err != nil && p == nil {
		return domain.Allow(), err
	}

	v, evalErr := s.Engine.Evaluate(ctx, p, req.Identity)
	err = errs.Combine(err, evalErr)

	if !v.Allowed && s.Logger != nil {
		logErr := s.Logger.Log(ctx, domain.LogEntry{
			RequestID:  req.RequestID,
			RequestKey: v.Key,
			Identity:   req.Identity,
			Counter:    v.Counter,
			Period:     v.Period,
			Limit:      v.Limit,
			Label:      s.Label,
			LogDate:    s.Engine.now(),
		})
		err = errs.Combine(err, logErr)
	}
	return v, err
}

// Usage lê (sem incrementar) os contadores da identidade para cada período
// que tem limite depois de aplicadas as regras.
func (s *Service) Usage(ctx context.Context, id domain.RequestIdentity) ([]Usage, error) {
	p, err := s.policy(ctx)
	if err != nil && p == nil {
		return nil, err
	}
	if !p.Enabled() || s.Engine == nil || s.Engine.Store == nil {
		return nil, nil
	}

	now := s.Engine.now()
	matchers := s.Engine.matchersFor(p)
	rates := ResolveDefaultRates(p)
	out := make([]Usage, 0, len(rates))
	for _, rate := range rates {
		limit := matchers.applyRules(id, rate.Period, rate.Limit)
		if limit <= 0 {
			continue
		}
		u := Usage{
			Period:    rate.Period,
			Limit:     limit,
			WindowEnd: now.Add(rate.Period.Span()),
		}
		key := ComputeKey(s.Engine.KeyPrefix, p, id, rate.Period)
		c, found, getErr := s.Engine.Store.Get(ctx, key)
		if getErr != nil {
			return nil, errs.Combine(err, EvaluationError.New("usage %s: %w", rate.Period, getErr))
		}
		if found && !c.Stale(rate.Period, now) {
			u.Current = c.TotalRequests
			u.WindowEnd = c.WindowEnd(rate.Period)
		}
		if u.Current < u.Limit {
			u.Remaining = u.Limit - u.Current
		}
		out = append(out, u)
	}
	return out, err
}

// Reset remove os contadores da identidade em todos os períodos.
func (s *Service) Reset(ctx context.Context, id domain.RequestIdentity) error {
	p, err := s.policy(ctx)
	if err != nil && p == nil {
		return err
	}
	if s.Engine == nil || s.Engine.Store == nil || p == nil {
		return nil
	}

	var group errs.Group
	for _, period := range domain.Periods() {
		key := ComputeKey(s.Engine.KeyPrefix, p, id, period)
		exists, existsErr := s.Engine.Store.Exists(ctx, key)
		if existsErr != nil {
			group.Add(existsErr)
			continue
		}
		if exists {
			group.Add(s.Engine.Store.Remove(ctx, key))
		}
	}
	return group.Err()
}

// ResetAll limpa todos os contadores do store.
func (s *Service) ResetAll(ctx context.Context) error {
	if s.Engine == nil || s.Engine.Store == nil {
		return nil
	}
	return s.Engine.Store.Clear(ctx)
}
