package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// RedisThrottleLogger agrega as rejeições em hashes no Redis:
//
//	<prefix>:total                 rejected, period:<período>
//	<prefix>:minute:<yyyymmddhhmm> rejected (com TTL)
//	<prefix>:endpoint              <endpoint>
//	<prefix>:client:<key>          rejected, period:<período> (opcional, com TTL)
type RedisThrottleLogger struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas às chaves de série temporal e por cliente.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackClients bool
}

var _ domain.ThrottleLogger = (*RedisThrottleLogger)(nil)

type RedisLoggerOption func(*RedisThrottleLogger)

func WithStatsPrefix(prefix string) RedisLoggerOption {
	return func(l *RedisThrottleLogger) { l.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisLoggerOption {
	return func(l *RedisThrottleLogger) { l.ttl = d }
}

func WithStatsBucket(bucket string) RedisLoggerOption {
	return func(l *RedisThrottleLogger) { l.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackClients grava também um hash por chave de cliente. Cuidado com
// a cardinalidade.
func WithStatsTrackClients(track bool) RedisLoggerOption {
	return func(l *RedisThrottleLogger) { l.trackClients = track }
}

func NewRedisThrottleLogger(rdb redis.UniversalClient, opts ...RedisLoggerOption) *RedisThrottleLogger {
	l := &RedisThrottleLogger{
		rdb:    rdb,
		prefix: "throttle:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisThrottleLogger) Log(ctx context.Context, e domain.LogEntry) error {
	if l == nil || l.rdb == nil {
		return nil
	}

	at := e.LogDate
	if at.IsZero() {
		at = time.Now()
	}
	periodField := "period:" + strings.ToLower(e.Period.String())

	pipe := l.rdb.Pipeline()
	totalKey := l.prefix + ":total"
	pipe.HIncrBy(ctx, totalKey, "rejected", 1)
	pipe.HIncrBy(ctx, totalKey, periodField, 1)

	if l.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", l.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, "rejected", 1)
		if l.ttl > 0 {
			pipe.Expire(ctx, bucketKey, l.ttl)
		}
	}

	if endpoint := strings.TrimSpace(e.Identity.Endpoint); endpoint != "" {
		pipe.HIncrBy(ctx, l.prefix+":endpoint", endpoint, 1)
	}

	if l.trackClients {
		if client := strings.TrimSpace(e.Identity.ClientKey); client != "" {
			clientKey := l.prefix + ":client:" + client
			pipe.HIncrBy(ctx, clientKey, "rejected", 1)
			pipe.HIncrBy(ctx, clientKey, periodField, 1)
			if l.ttl > 0 {
				pipe.Expire(ctx, clientKey, l.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return StoreError.New("record rejection: %w", err)
	}
	return nil
}
