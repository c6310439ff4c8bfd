package domain

import "time"

// Counter é o contador de uma janela fixa: início da janela e total de
// requisições vistas nela.
type Counter struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalRequests int64     `json:"total_requests"`
}

// WindowEnd é o instante em que a janela do contador termina.
func (c Counter) WindowEnd(p Period) time.Time {
	return c.Timestamp.Add(p.Span())
}

// Stale indica que a janela já terminou mas o contador ainda existe
// (expiração do store atrasada ou mais grossa que o período).
func (c Counter) Stale(p Period, now time.Time) bool {
	return c.WindowEnd(p).Before(now)
}

// Next aplica a regra de atualização compartilhada por todos os stores:
// contador ausente ou expirado abre uma janela nova em now; contador vivo é
// incrementado mantendo o timestamp original.
//
// O ttl retornado é o tempo restante até o fim da janela, nunca estendido.
func (c Counter) Next(found bool, p Period, now time.Time) (Counter, time.Duration) {
	if !found || c.Stale(p, now) {
		return Counter{Timestamp: now, TotalRequests: 1}, p.Span()
	}
	next := Counter{Timestamp: c.Timestamp, TotalRequests: c.TotalRequests + 1}
	ttl := next.WindowEnd(p).Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return next, ttl
}
