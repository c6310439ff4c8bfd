package infra

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	badger "github.com/outcaste-io/badger/v3"
	"github.com/outcaste-io/badger/v3/options"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// BadgerConfig configura o BadgerCounterStore.
type BadgerConfig struct {
	// Path vazio abre o banco em memória.
	Path      string
	KeyPrefix string

	ConflictBackoff ExponentialBackoff
}

// BadgerCounterStore persiste contadores num badger embutido, para gateways
// de instância única que não podem perder as janelas longas (dia/semana) num
// restart.
type BadgerCounterStore struct {
	db     *badger.DB
	log    *zap.Logger
	config BadgerConfig
}

var (
	_ domain.CounterStore       = (*BadgerCounterStore)(nil)
	_ domain.CounterIncrementer = (*BadgerCounterStore)(nil)
)

func OpenBadgerCounterStore(log *zap.Logger, config BadgerConfig) (*BadgerCounterStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = application.DefaultKeyPrefix
	}
	config.KeyPrefix = strings.Trim(config.KeyPrefix, ":")

	opt := badger.DefaultOptions(config.Path)
	if inMemory := config.Path == ""; inMemory {
		log.Warn("badger in-memory mode enabled; counters are lost on shutdown")
		opt = opt.WithInMemory(inMemory)
	}
	opt = opt.WithCompression(options.None)
	opt = opt.WithBlockCacheSize(0)
	opt = opt.WithLogger(badgerLogger{log.Sugar().Named("badger")})

	db, err := badger.Open(opt)
	if err != nil {
		return nil, StoreError.New("open badger: %w", err)
	}
	return &BadgerCounterStore{db: db, log: log, config: config}, nil
}

func (s *BadgerCounterStore) Close() error {
	return StoreError.Wrap(s.db.Close())
}

// badgerTTL arredonda para cima em segundos: o badger guarda a expiração em
// segundos unix e truncaria uma janela de 1s para zero.
func badgerTTL(ttl time.Duration) time.Duration {
	return ttl.Truncate(time.Second) + time.Second
}

func (s *BadgerCounterStore) Save(ctx context.Context, key string, c domain.Counter, ttl time.Duration) error {
	if ttl <= 0 {
		return StoreError.New("non-positive ttl %s for %q", ttl, key)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return StoreError.New("encode %q: %w", key, err)
	}
	return StoreError.Wrap(s.txnWithBackoff(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(badgerTTL(ttl)))
	}))
}

func (s *BadgerCounterStore) Exists(_ context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errs.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return found, StoreError.Wrap(err)
}

func (s *BadgerCounterStore) Get(_ context.Context, key string) (c domain.Counter, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		c, found, err = getCounter(txn, key)
		return err
	})
	return c, found, StoreError.Wrap(err)
}

func getCounter(txn *badger.Txn, key string) (domain.Counter, bool, error) {
	item, err := txn.Get([]byte(key))
	if errs.Is(err, badger.ErrKeyNotFound) {
		return domain.Counter{}, false, nil
	}
	if err != nil {
		return domain.Counter{}, false, err
	}
	var c domain.Counter
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	}); err != nil {
		return domain.Counter{}, false, errs.New("decode %q: %w", key, err)
	}
	return c, true, nil
}

func (s *BadgerCounterStore) Remove(ctx context.Context, key string) error {
	return StoreError.Wrap(s.txnWithBackoff(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}))
}

// Clear remove tudo sob o prefixo das chaves de contador.
func (s *BadgerCounterStore) Clear(context.Context) error {
	return StoreError.Wrap(s.db.DropPrefix([]byte(s.config.KeyPrefix + ":")))
}

// Increment lê, aplica domain.Counter.Next e grava na mesma transação. Um
// conflito com outra transação é repetido com backoff.
func (s *BadgerCounterStore) Increment(ctx context.Context, key string, p domain.Period, now time.Time) (domain.Counter, error) {
	var next domain.Counter
	err := s.txnWithBackoff(ctx, func(txn *badger.Txn) error {
		current, found, err := getCounter(txn, key)
		if err != nil {
			return err
		}
		var ttl time.Duration
		next, ttl = current.Next(found, p, now)
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(badgerTTL(ttl)))
	})
	if err != nil {
		return domain.Counter{}, StoreError.New("increment %q: %w", key, err)
	}
	return next, nil
}

func (s *BadgerCounterStore) txnWithBackoff(ctx context.Context, f func(txn *badger.Txn) error) error {
	// cópia: cada chamada tem o próprio atraso
	conflictBackoff := s.config.ConflictBackoff
	for {
		if err := s.db.Update(f); err != nil {
			if errs.Is(err, badger.ErrConflict) && !conflictBackoff.Maxed() {
				s.log.Debug("badger transaction conflict, retrying", zap.Duration("delay", conflictBackoff.Delay))
				if err := conflictBackoff.Wait(ctx); err != nil {
					return err
				}
				continue
			}
			return err
		}
		return nil
	}
}

// badgerLogger adapta o SugaredLogger do zap para o Logger do badger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, v ...interface{}) {
	l.Warnf(format, v...)
}
