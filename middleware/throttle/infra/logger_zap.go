package infra

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// ZapThrottleLogger escreve uma linha warn por rejeição.
//
// Sob ataque as rejeições chegam aos milhares por segundo; o sampler
// (token bucket) limita as linhas e a próxima linha escrita conta quantas
// foram suprimidas.
type ZapThrottleLogger struct {
	log        *zap.Logger
	sampler    *rate.Limiter
	suppressed atomic.Int64
}

var _ domain.ThrottleLogger = (*ZapThrottleLogger)(nil)

// NewZapThrottleLogger cria o logger. perSecond <= 0 desliga a amostragem.
func NewZapThrottleLogger(log *zap.Logger, perSecond float64, burst int) *ZapThrottleLogger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &ZapThrottleLogger{log: log}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		l.sampler = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

func (l *ZapThrottleLogger) Log(_ context.Context, e domain.LogEntry) error {
	at := e.LogDate
	if at.IsZero() {
		at = time.Now()
	}
	if l.sampler != nil && !l.sampler.AllowN(at, 1) {
		l.suppressed.Add(1)
		return nil
	}

	fields := []zap.Field{
		zap.String("request_id", e.RequestID),
		zap.String("key", e.RequestKey),
		zap.String("client_ip", e.Identity.ClientIP),
		zap.String("client_key", e.Identity.ClientKey),
		zap.String("endpoint", e.Identity.Endpoint),
		zap.Stringer("period", e.Period),
		zap.Int64("limit", e.Limit),
		zap.Int64("total_requests", e.Counter.TotalRequests),
		zap.Time("window_start", e.Counter.Timestamp),
	}
	if e.Label != "" {
		fields = append(fields, zap.String("label", e.Label))
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Int64("suppressed", n))
	}
	l.log.Warn("request throttled", fields...)
	return nil
}

// Suppressed é o número de entradas descartadas pelo sampler desde a última
// linha escrita.
func (l *ZapThrottleLogger) Suppressed() int64 { return l.suppressed.Load() }
