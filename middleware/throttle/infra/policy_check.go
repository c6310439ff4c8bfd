package infra

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// patternCheck loga cada padrão de IP malformado uma vez só, em vez de a
// cada requisição (no engine eles apenas não casam).
type patternCheck struct {
	log *zap.Logger

	mu     sync.Mutex
	warned map[string]bool
}

func newPatternCheck(log *zap.Logger) *patternCheck {
	if log == nil {
		log = zap.NewNop()
	}
	return &patternCheck{log: log, warned: make(map[string]bool)}
}

func (c *patternCheck) warn(p *domain.Policy) {
	c.warnStackOrder(p)

	patterns := append([]string(nil), p.IPWhitelist...)
	for _, rule := range p.IPRules {
		patterns = append(patterns, rule.Pattern)
	}

	_, errList := application.CompileIPPatterns(patterns)
	if len(errList) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, err := range errList {
		msg := err.Error()
		if c.warned[msg] {
			continue
		}
		c.warned[msg] = true
		c.log.Warn("ignoring malformed ip pattern", zap.Error(err))
	}
}

// warnStackOrder avisa quando, empilhando, Rates não vem do período menor para
// o maior: a avaliação segue a ordem inversa de Rates, não o tamanho do período.
func (c *patternCheck) warnStackOrder(p *domain.Policy) {
	if !p.StackBlockedRequests {
		return
	}
	for i := 1; i < len(p.Rates); i++ {
		prev, next := p.Rates[i-1].Period, p.Rates[i].Period
		if next > prev {
			continue
		}

		msg := "stack order " + prev.String() + ">" + next.String()
		c.mu.Lock()
		seen := c.warned[msg]
		c.warned[msg] = true
		c.mu.Unlock()
		if !seen {
			c.log.Warn("stacked rates not in ascending period order",
				zap.Stringer("period", prev), zap.Stringer("followed_by", next))
		}
		return
	}
}
