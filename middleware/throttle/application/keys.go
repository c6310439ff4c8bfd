package application

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// DefaultKeyPrefix é o namespace padrão das chaves de contador.
const DefaultKeyPrefix = "throttle"

// ComputeKey deriva a chave de armazenamento de (identidade, período).
//
// Formato: <prefix>:<período>:<sha256 hex>. Só entram no hash as dimensões
// com throttling ligado, então desligar EndpointThrottling faz todos os
// endpoints de um cliente compartilharem o mesmo contador.
func ComputeKey(prefix string, p *domain.Policy, id domain.RequestIdentity, period domain.Period) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	periodName := strings.ToLower(period.String())

	var b strings.Builder
	if p != nil && p.IPThrottling {
		writeKeyPart(&b, "ip", id.ClientIP)
	}
	if p != nil && p.ClientThrottling {
		writeKeyPart(&b, "client", id.ClientKey)
	}
	if p != nil && p.EndpointThrottling {
		writeKeyPart(&b, "endpoint", id.Endpoint)
	}
	writeKeyPart(&b, "period", periodName)

	sum := sha256.Sum256([]byte(b.String()))
	return prefix + ":" + periodName + ":" + hex.EncodeToString(sum[:])
}

// writeKeyPart escreve name=len:value, evitando colisões entre componentes
// que contenham o separador.
func writeKeyPart(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte(';')
}
