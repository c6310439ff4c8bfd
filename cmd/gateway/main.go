package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/infra"
)

func main() {
	// .env é opcional; variáveis já exportadas têm precedência
	dotenvErr := godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn("could not load .env", zap.Error(dotenvErr))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func newLogger(cfg config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.logDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.logLevel)
	return zc.Build()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return ConfigError.New("invalid UPSTREAM_URL: %w", err)
	}

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return infra.StoreError.New("redis ping: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := throttle.NewMetrics(registry)

	store, closeStore, err := openStore(ctx, cfg, rdb, registry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	repo, err := openPolicyRepository(cfg, rdb, logger)
	if err != nil {
		return err
	}
	provider := application.NewRepositoryProvider(repo, cfg.policyRefresh)
	if _, err := provider.Reload(ctx); err != nil {
		// segue sem política (tudo liberado) até o repositório responder
		logger.Warn("initial policy load failed", zap.Error(err))
	}
	if fileRepo, ok := repo.(*infra.FilePolicyRepository); ok {
		changes, err := fileRepo.Watch(ctx)
		if err != nil {
			logger.Warn("policy hot reload disabled", zap.Error(err))
		} else {
			go func() {
				for range changes {
					if _, err := provider.Reload(ctx); err != nil {
						logger.Warn("policy reload failed", zap.Error(err))
						continue
					}
					logger.Info("policy reloaded", zap.Uint64("version", provider.Version()))
				}
			}()
		}
	}

	throttleLoggers := infra.MultiLogger{
		infra.NewZapThrottleLogger(logger.Named("throttle"), cfg.logSampleRPS, int(cfg.logSampleRPS)+1),
	}
	if cfg.statsEnabled {
		throttleLoggers = append(throttleLoggers, infra.NewRedisThrottleLogger(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsTrackClients(cfg.statsTrackClients),
		))
	}

	onStoreError := application.FailOpen
	if cfg.failClosed {
		onStoreError = application.FailClosed
	}
	svc := &application.Service{
		Engine: &application.Engine{
			Store:        store,
			KeyPrefix:    cfg.keyPrefix,
			OnStoreError: onStoreError,
		},
		Policies: provider,
		Logger:   throttleLoggers,
		Label:    cfg.logLabel,
	}

	var adapter throttle.RequestAdapter = throttle.DirectAdapter{KeyHeader: cfg.clientKeyHeader}
	if cfg.trustXFF {
		fwd, errList := throttle.NewForwardedAdapter(cfg.clientKeyHeader, cfg.trustedProxies)
		for _, err := range errList {
			logger.Warn("ignoring trusted proxy", zap.Error(err))
		}
		adapter = fwd
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h := http.Handler(proxy)
	if cfg.throttleEnabled {
		h = throttle.Middleware(throttle.Options{
			Service:              svc,
			Adapter:              adapter,
			RejectStatus:         cfg.rejectStatus,
			QuotaExceededMessage: cfg.quotaMessage,
			AddThrottleHeaders:   cfg.addHeaders,
			Logger:               logger.Named("middleware"),
			Metrics:              metrics,
		})(h)
	}
	h = throttle.InflightLimit(throttle.InflightOptions{
		Max:            cfg.maxInflight,
		AcquireTimeout: cfg.inflightTimeout,
		Logger:         logger.Named("inflight"),
	})(h)

	admin := &adminAPI{
		svc:       svc,
		repo:      repo,
		provider:  provider,
		policyKey: domain.PolicyKey,
		gatherer:  registry,
		log:       logger.Named("admin"),
	}

	servers := []*http.Server{
		newServer(cfg.listenAddr, h),
		newServer(cfg.adminAddr, admin.routes()),
	}

	logger.Info("gateway starting",
		zap.String("listen", cfg.listenAddr),
		zap.String("admin", cfg.adminAddr),
		zap.Stringer("upstream", target),
		zap.Bool("throttle", cfg.throttleEnabled),
		zap.String("store", cfg.store),
		zap.String("policy_source", cfg.policySource),
		zap.Bool("fail_closed", cfg.failClosed),
		zap.Bool("trust_xff", cfg.trustXFF))

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var group errs.Group
		for _, srv := range servers {
			group.Add(srv.Shutdown(shutdownCtx))
		}
		return group.Err()
	})
	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// openStore monta o store escolhido, já limitado por BoundedStore.
func openStore(ctx context.Context, cfg config, rdb *redis.Client, reg prometheus.Registerer, logger *zap.Logger) (domain.CounterStore, func(), error) {
	var (
		store   domain.CounterStore
		closeFn = func() {}
	)
	switch cfg.store {
	case "redis":
		store = infra.NewRedisCounterStore(rdb, infra.WithRedisKeyPrefix(cfg.keyPrefix))
	case "badger":
		bs, err := infra.OpenBadgerCounterStore(logger.Named("badger"), infra.BadgerConfig{
			Path:      cfg.badgerPath,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		store = bs
		closeFn = func() {
			if err := bs.Close(); err != nil {
				logger.Warn("closing badger", zap.Error(err))
			}
		}
	default:
		ms := infra.NewMemoryCounterStore()
		ms.StartJanitor(ctx)
		store = ms
	}

	bounded := &application.BoundedStore{Next: store, CallTimeout: cfg.storeTimeout}
	if cfg.storeMaxInflight > 0 {
		slots := infra.NewChanPool(cfg.storeMaxInflight)
		bounded.Slots = application.ConcurrencyService{
			Pool:           slots,
			AcquireTimeout: cfg.storeTimeout,
		}
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "throttle",
			Name:      "store_slots_in_use",
			Help:      "Counter store calls currently in flight.",
		}, func() float64 { return float64(slots.InUse()) }))
	}
	return bounded, closeFn, nil
}

func openPolicyRepository(cfg config, rdb *redis.Client, logger *zap.Logger) (domain.PolicyRepository, error) {
	if cfg.policySource == "redis" {
		return infra.NewRedisPolicyRepository(rdb, cfg.policyRedisPrefix, logger.Named("policy")), nil
	}
	return infra.NewFilePolicyRepository(cfg.policyFile, logger.Named("policy"))
}
