package infra

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// RedisPolicyRepository guarda a política como JSON em <prefix>:<key>, sem
// expiração. Vários gateways podem compartilhar a mesma política.
type RedisPolicyRepository struct {
	rdb    redis.UniversalClient
	prefix string
	check  *patternCheck
}

var _ domain.PolicyRepository = (*RedisPolicyRepository)(nil)

func NewRedisPolicyRepository(rdb redis.UniversalClient, prefix string, log *zap.Logger) *RedisPolicyRepository {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "throttle_config"
	}
	return &RedisPolicyRepository{rdb: rdb, prefix: prefix, check: newPatternCheck(log)}
}

func (r *RedisPolicyRepository) key(key string) string { return r.prefix + ":" + key }

func (r *RedisPolicyRepository) Save(ctx context.Context, key string, p *domain.Policy) error {
	if err := p.Validate(); err != nil {
		return PolicyError.Wrap(err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return PolicyError.New("encode %q: %w", key, err)
	}
	if err := r.rdb.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return PolicyError.New("save %q: %w", key, err)
	}
	return nil
}

func (r *RedisPolicyRepository) Get(ctx context.Context, key string) (*domain.Policy, bool, error) {
	data, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errs.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, PolicyError.New("get %q: %w", key, err)
	}

	var p domain.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, PolicyError.New("decode %q: %w", key, err)
	}
	if err := p.Validate(); err != nil {
		return nil, false, PolicyError.Wrap(err)
	}
	r.check.warn(&p)
	return &p, true, nil
}
