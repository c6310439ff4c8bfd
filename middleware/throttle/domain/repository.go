package domain

import "context"

// PolicyRepository guarda políticas por chave, permitindo trocar a política
// ativa sem reiniciar o processo.
type PolicyRepository interface {
	Save(ctx context.Context, key string, p *Policy) error
	// Get retorna found=false quando não há política para a chave.
	Get(ctx context.Context, key string) (p *Policy, found bool, err error)
}
