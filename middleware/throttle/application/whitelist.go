package application

import (
	"strings"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// IsWhitelisted indica se a identidade está isenta de throttling: IP na
// IPWhitelist, chave na ClientWhitelist ou endpoint na EndpointWhitelist.
//
// É puro: não lê nem escreve contadores.
func IsWhitelisted(p *domain.Policy, id domain.RequestIdentity) bool {
	return compileMatchers(p).whitelisted(id)
}

func (m *policyMatchers) whitelisted(id domain.RequestIdentity) bool {
	p := m.policy
	if p == nil {
		return false
	}
	if m.whitelist.Match(id.ClientIP) {
		return true
	}
	for _, key := range p.ClientWhitelist {
		if key == id.ClientKey {
			return true
		}
	}
	for _, pattern := range p.EndpointWhitelist {
		if matchEndpoint(pattern, id.Endpoint) {
			return true
		}
	}
	return false
}

// matchEndpoint casa quando o padrão (sem diferenciar maiúsculas) está contido
// no endpoint.
func matchEndpoint(pattern, endpoint string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(endpoint), pattern)
}
