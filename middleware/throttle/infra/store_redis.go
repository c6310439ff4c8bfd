package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// incrementScript aplica a regra de domain.Counter.Next dentro do Redis.
// KEYS[1] = chave; ARGV[1] = agora (ms); ARGV[2] = duração da janela (ms).
// Retorna {início da janela (ms), total}.
var incrementScript = redis.NewScript(`
local ts = redis.call('HGET', KEYS[1], 'ts')
local n = redis.call('HGET', KEYS[1], 'n')
local now = tonumber(ARGV[1])
local span = tonumber(ARGV[2])
if ts and n then
	ts = tonumber(ts)
	if ts + span >= now then
		local total = redis.call('HINCRBY', KEYS[1], 'n', 1)
		local ttl = ts + span - now
		if ttl < 1 then
			ttl = 1
		end
		redis.call('PEXPIRE', KEYS[1], math.floor(ttl))
		return {ts, total}
	end
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'n', 1)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {now, 1}
`)

// RedisCounterStore guarda cada contador num hash {ts, n} com PEXPIRE.
//
// Increment roda num script Lua, então é atômico entre vários processos.
// Os timestamps têm resolução de milissegundos.
type RedisCounterStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
	scanCount int64
}

var (
	_ domain.CounterStore       = (*RedisCounterStore)(nil)
	_ domain.CounterIncrementer = (*RedisCounterStore)(nil)
)

type RedisStoreOption func(*RedisCounterStore)

// WithRedisKeyPrefix deve ser o mesmo prefixo usado pelo Engine; Clear só
// remove chaves de contador com esse prefixo.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisCounterStore) { s.keyPrefix = strings.Trim(prefix, ":") }
}

func WithScanCount(n int64) RedisStoreOption {
	return func(s *RedisCounterStore) { s.scanCount = n }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:       rdb,
		keyPrefix: application.DefaultKeyPrefix,
		scanCount: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) Save(ctx context.Context, key string, c domain.Counter, ttl time.Duration) error {
	if ttl <= 0 {
		return StoreError.New("non-positive ttl %s for %q", ttl, key)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "ts", c.Timestamp.UnixMilli(), "n", c.TotalRequests)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return StoreError.New("save %q: %w", key, err)
	}
	return nil
}

func (s *RedisCounterStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, StoreError.New("exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (domain.Counter, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Counter{}, false, StoreError.New("get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.Counter{}, false, nil
	}
	ts, err1 := strconv.ParseInt(fields["ts"], 10, 64)
	n, err2 := strconv.ParseInt(fields["n"], 10, 64)
	if err := errs.Combine(err1, err2); err != nil {
		return domain.Counter{}, false, StoreError.New("decode %q: %w", key, err)
	}
	return domain.Counter{Timestamp: time.UnixMilli(ts).UTC(), TotalRequests: n}, true, nil
}

func (s *RedisCounterStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return StoreError.New("remove %q: %w", key, err)
	}
	return nil
}

// Clear remove as chaves <prefix>:<período>:* com SCAN + DEL. Não usa
// FLUSHDB: o mesmo banco costuma guardar a política e as estatísticas.
func (s *RedisCounterStore) Clear(ctx context.Context) error {
	for _, p := range domain.Periods() {
		match := s.keyPrefix + ":" + strings.ToLower(p.String()) + ":*"
		var cursor uint64
		for {
			keys, next, err := s.rdb.Scan(ctx, cursor, match, s.scanCount).Result()
			if err != nil {
				return StoreError.New("scan %q: %w", match, err)
			}
			if len(keys) > 0 {
				if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
					return StoreError.New("clear: %w", err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, p domain.Period, now time.Time) (domain.Counter, error) {
	res, err := incrementScript.Run(ctx, s.rdb, []string{key}, now.UnixMilli(), p.Span().Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Counter{}, StoreError.New("increment %q: %w", key, err)
	}
	if len(res) != 2 {
		return domain.Counter{}, StoreError.New("increment %q: unexpected reply %v", key, res)
	}
	return domain.Counter{Timestamp: time.UnixMilli(res[0]).UTC(), TotalRequests: res[1]}, nil
}
