package throttle

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// DefaultClientKeyHeader é o header de onde vem a chave do cliente.
const DefaultClientKeyHeader = "Authorization-Token"

// RequestAdapter extrai a identidade de uma requisição HTTP. A variante é
// escolhida uma vez, na montagem do middleware.
type RequestAdapter interface {
	Identity(r *http.Request) domain.RequestIdentity
}

// DirectAdapter usa o RemoteAddr da conexão. Para servidores expostos
// diretamente, sem proxy na frente.
type DirectAdapter struct {
	KeyHeader string
}

func (a DirectAdapter) Identity(r *http.Request) domain.RequestIdentity {
	return domain.NewRequestIdentity(remoteHost(r.RemoteAddr), clientKey(r, a.KeyHeader), r.URL.Path)
}

// ForwardedAdapter confia nos headers Forwarded, X-Forwarded-For e X-Real-Ip
// (nessa ordem), mas só quando a conexão vem de um proxy confiável.
type ForwardedAdapter struct {
	KeyHeader string
	trusted   *application.IPMatcher
	trustAll  bool
}

// NewForwardedAdapter compila a lista de proxies confiáveis (IP, CIDR,
// intervalo ou curinga). Lista vazia confia em qualquer origem. Padrões
// inválidos voltam como erro e ficam de fora.
func NewForwardedAdapter(keyHeader string, trustedProxies []string) (*ForwardedAdapter, []error) {
	m, errList := application.CompileIPPatterns(trustedProxies)
	return &ForwardedAdapter{
		KeyHeader: keyHeader,
		trusted:   m,
		trustAll:  len(trustedProxies) == 0,
	}, errList
}

var forwardedForRegExp = regexp.MustCompile(`(?i)for=([^,; ]+)`)

func (a *ForwardedAdapter) Identity(r *http.Request) domain.RequestIdentity {
	ip := remoteHost(r.RemoteAddr)
	if a.trustAll || a.trusted.Match(ip) {
		if client := forwardedClientIP(r.Header); client != "" {
			ip = client
		}
	}
	return domain.NewRequestIdentity(ip, clientKey(r, a.KeyHeader), r.URL.Path)
}

func forwardedClientIP(h http.Header) string {
	if v := h.Get("Forwarded"); v != "" {
		// o primeiro for= é o cliente original
		if m := forwardedForRegExp.FindStringSubmatch(v); len(m) > 1 {
			return stripPort(strings.Trim(m[1], `"`))
		}
	}
	if v := h.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return strings.TrimSpace(h.Get("X-Real-Ip"))
}

func clientKey(r *http.Request, header string) string {
	if header == "" {
		header = DefaultClientKeyHeader
	}
	return r.Header.Get(header)
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// stripPort trata "1.2.3.4:80", "[2001:db8::1]:80" e "[2001:db8::1]".
func stripPort(v string) string {
	if host, _, err := net.SplitHostPort(v); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
}
