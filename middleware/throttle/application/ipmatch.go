package application

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// ipPattern é um padrão de IP já compilado: endereço exato, CIDR, intervalo
// "a-b" ou curingas por octeto ("192.168.*").
type ipPattern struct {
	prefix netip.Prefix
	lo, hi netip.Addr
	octets []int // -1 = curinga
}

// IPMatcher é uma lista de padrões de IP compilada uma única vez.
type IPMatcher struct {
	patterns []ipPattern
}

// CompileIPPatterns compila os padrões. Padrões malformados ficam de fora e
// voltam como erro (um por padrão) para quem carrega a política logar.
func CompileIPPatterns(patterns []string) (*IPMatcher, []error) {
	m := &IPMatcher{patterns: make([]ipPattern, 0, len(patterns))}
	var errList []error
	for _, raw := range patterns {
		p, err := compileIPPattern(raw)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		m.patterns = append(m.patterns, p)
	}
	return m, errList
}

// Match indica se ip casa com algum padrão. IP malformado nunca casa.
func (m *IPMatcher) Match(ip string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	addr, ok := parseClientIP(ip)
	if !ok {
		return false
	}
	return m.matchAddr(addr)
}

func (m *IPMatcher) matchAddr(addr netip.Addr) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if p.match(addr) {
			return true
		}
	}
	return false
}

// MatchIP compila e casa numa chamada só; padrões malformados são ignorados.
// Para casar várias vezes, compile antes com CompileIPPatterns.
func MatchIP(patterns []string, ip string) bool {
	m, _ := CompileIPPatterns(patterns)
	return m.Match(ip)
}

func parseClientIP(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func compileIPPattern(raw string) (ipPattern, error) {
	s := strings.TrimSpace(raw)
	var p ipPattern
	switch {
	case s == "":
		return p, domain.Error.New("empty ip pattern")

	case strings.Contains(s, "/"):
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return p, domain.Error.New("invalid cidr %q: %w", raw, err)
		}
		p.prefix = prefix.Masked()
		return p, nil

	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		lo, err1 := netip.ParseAddr(strings.TrimSpace(parts[0]))
		hi, err2 := netip.ParseAddr(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || lo.Unmap().Is4() != hi.Unmap().Is4() || hi.Unmap().Less(lo.Unmap()) {
			return p, domain.Error.New("invalid ip range %q", raw)
		}
		p.lo, p.hi = lo.Unmap(), hi.Unmap()
		return p, nil

	case strings.Contains(s, "*"):
		fields := strings.Split(s, ".")
		if len(fields) > 4 {
			return p, domain.Error.New("invalid wildcard %q", raw)
		}
		p.octets = make([]int, 4)
		for i := range p.octets {
			p.octets[i] = -1
		}
		for i, f := range fields {
			if f == "*" {
				continue
			}
			n, err := strconv.Atoi(f)
			if err != nil || n < 0 || n > 255 {
				return p, domain.Error.New("invalid wildcard %q", raw)
			}
			p.octets[i] = n
		}
		return p, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return p, domain.Error.New("invalid ip %q: %w", raw, err)
	}
	p.lo, p.hi = addr.Unmap(), addr.Unmap()
	return p, nil
}

func (p ipPattern) match(addr netip.Addr) bool {
	switch {
	case p.prefix.IsValid():
		return p.prefix.Contains(addr)
	case p.octets != nil:
		if !addr.Is4() {
			return false
		}
		b := addr.As4()
		for i, o := range p.octets {
			if o >= 0 && int(b[i]) != o {
				return false
			}
		}
		return true
	case p.lo.IsValid():
		return p.lo.Compare(addr) <= 0 && addr.Compare(p.hi) <= 0
	}
	return false
}
