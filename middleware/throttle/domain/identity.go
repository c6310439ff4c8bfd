package domain

import "strings"

// AnonymousClientKey é usado quando a requisição não traz chave de cliente.
const AnonymousClientKey = "anon"

// RequestIdentity identifica quem fez a requisição e para onde.
//
// É um valor imutável: construa com NewRequestIdentity para garantir a
// normalização (chave padrão e endpoint em minúsculas).
type RequestIdentity struct {
	ClientIP  string
	ClientKey string
	Endpoint  string
}

func NewRequestIdentity(clientIP, clientKey, endpoint string) RequestIdentity {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = AnonymousClientKey
	}
	return RequestIdentity{
		ClientIP:  strings.TrimSpace(clientIP),
		ClientKey: clientKey,
		Endpoint:  strings.ToLower(strings.TrimSpace(endpoint)),
	}
}
