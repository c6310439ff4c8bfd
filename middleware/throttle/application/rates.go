package application

import (
	"net/netip"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// ResolveDefaultRates devolve os cinco períodos: os configurados em
// policy.Rates, na ordem relativa em que aparecem, e os ausentes com limite 0
// (sem limite), inseridos na posição do período (segundo no índice 0, minuto
// no 1, ...). Um período sem limite padrão ainda pode ganhar limite por uma
// regra. A cópia pode ser invertida livremente.
func ResolveDefaultRates(p *domain.Policy) []domain.Rate {
	if p == nil {
		return nil
	}
	periods := domain.Periods()
	rates := make([]domain.Rate, 0, len(periods))
	seen := make(map[domain.Period]bool, len(periods))
	for _, r := range p.Rates {
		if r.Period.Valid() && !seen[r.Period] {
			rates = append(rates, r)
			seen[r.Period] = true
		}
	}
	for i, period := range periods {
		if seen[period] {
			continue
		}
		at := min(i, len(rates))
		rates = append(rates, domain.Rate{})
		copy(rates[at+1:], rates[at:])
		rates[at] = domain.Rate{Period: period}
	}
	return rates
}

// policyMatchers guarda os padrões de IP de uma política já compilados.
// Vale enquanto a política não muda; políticas são trocadas, nunca alteradas.
type policyMatchers struct {
	policy    *domain.Policy
	whitelist *IPMatcher
	ipRules   []*IPMatcher // um por policy.IPRules[i]
}

func compileMatchers(p *domain.Policy) *policyMatchers {
	m := &policyMatchers{policy: p}
	if p == nil {
		return m
	}
	m.whitelist, _ = CompileIPPatterns(p.IPWhitelist)
	m.ipRules = make([]*IPMatcher, len(p.IPRules))
	for i, rule := range p.IPRules {
		m.ipRules[i], _ = CompileIPPatterns([]string{rule.Pattern})
	}
	return m
}

// ApplyRules aplica as regras da política sobre o limite candidato.
//
// Precedência: IP, depois cliente, depois endpoint, cada dimensão só quando o
// throttling dela está ligado. Dentro da dimensão vale a primeira regra que casa
// e define limite para o período; o resto é ignorado. Resultado <= 0 significa
// sem limite para o período.
func ApplyRules(p *domain.Policy, id domain.RequestIdentity, period domain.Period, candidate int64) int64 {
	return compileMatchers(p).applyRules(id, period, candidate)
}

func (m *policyMatchers) applyRules(id domain.RequestIdentity, period domain.Period, candidate int64) int64 {
	p := m.policy
	if p == nil {
		return candidate
	}
	if p.IPThrottling && len(p.IPRules) > 0 {
		if addr, ok := parseClientIP(id.ClientIP); ok {
			if limit, ok := m.ipRuleLimit(addr, period); ok {
				return limit
			}
		}
	}
	if p.ClientThrottling {
		for _, rule := range p.ClientRules {
			if rule.Pattern != id.ClientKey {
				continue
			}
			if limit, ok := rule.Limit(period); ok {
				return limit
			}
		}
	}
	if p.EndpointThrottling {
		for _, rule := range p.EndpointRules {
			if !matchEndpoint(rule.Pattern, id.Endpoint) {
				continue
			}
			if limit, ok := rule.Limit(period); ok {
				return limit
			}
		}
	}
	return candidate
}

func (m *policyMatchers) ipRuleLimit(addr netip.Addr, period domain.Period) (int64, bool) {
	for i, rule := range m.policy.IPRules {
		if !m.ipRules[i].matchAddr(addr) {
			continue
		}
		if limit, ok := rule.Limit(period); ok {
			return limit, true
		}
	}
	return 0, false
}
