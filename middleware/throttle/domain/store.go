package domain

import (
	"context"
	"time"
)

// CounterStore é o contrato chave/valor usado pelo engine para guardar
// contadores.
//
// Implementações devem garantir leitura-após-escrita numa mesma chave. A
// expiração pode atrasar um pouco; o engine trata contadores vencidos.
type CounterStore interface {
	// Save grava (upsert) o contador e reinicia o TTL da chave.
	Save(ctx context.Context, key string, c Counter, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	// Get retorna found=false quando a chave não existe ou expirou.
	Get(ctx context.Context, key string) (c Counter, found bool, err error)
	Remove(ctx context.Context, key string) error
	// Clear remove todos os contadores do store.
	Clear(ctx context.Context) error
}

// CounterIncrementer é uma capacidade opcional: incremento atômico por chave
// aplicando Counter.Next dentro do store. Sem ela o engine faz get/save e
// aceita a corrida de +1 sob concorrência.
type CounterIncrementer interface {
	Increment(ctx context.Context, key string, p Period, now time.Time) (Counter, error)
}
