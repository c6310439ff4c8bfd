package domain

import "time"

// Verdict é o resultado da avaliação de uma requisição.
//
// Quando Allowed é true os demais campos ficam zerados. Quando false,
// Period/Limit indicam a janela responsável e RetryAfter quanto falta para ela
// reiniciar.
type Verdict struct {
	Allowed    bool
	Period     Period
	Limit      int64
	RetryAfter time.Duration
	Counter    Counter
	Key        string
}

// Allow é o veredito de requisição permitida.
func Allow() Verdict { return Verdict{Allowed: true} }

// RetryAfterSeconds arredonda RetryAfter para cima em segundos inteiros
// (nunca negativo), que é o formato do header Retry-After.
func (v Verdict) RetryAfterSeconds() int64 {
	if v.RetryAfter <= 0 {
		return 0
	}
	secs := int64(v.RetryAfter / time.Second)
	if v.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
