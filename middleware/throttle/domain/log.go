package domain

import (
	"context"
	"time"
)

// LogEntry descreve uma requisição rejeitada.
//
// Ele é propositalmente "agnóstico de HTTP": Endpoint vem da identidade e pode
// representar rota web, método gRPC, etc.
//
// Observação: cuidado com cardinalidade ao persistir RequestKey/Identity em
// bases como Redis ou Prometheus.
type LogEntry struct {
	RequestID  string
	RequestKey string
	Identity   RequestIdentity
	Counter    Counter
	Period     Period
	Limit      int64
	Label      string
	LogDate    time.Time
}

// ThrottleLogger recebe as entradas de rejeição.
//
// Implementações podem escrever em log estruturado, Redis, memória, etc.
// Erros são best-effort: nunca mudam o veredito.
type ThrottleLogger interface {
	Log(ctx context.Context, e LogEntry) error
}
