package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/infra"
)

// examplePolicy: 5/s e 100/min por IP e endpoint, /health fora do throttling
// e uma chave de cliente com cota maior.
func examplePolicy() *domain.Policy {
	return &domain.Policy{
		IPThrottling:       true,
		ClientThrottling:   true,
		EndpointThrottling: true,
		Rates: []domain.Rate{
			{Period: domain.Second, Limit: 5},
			{Period: domain.Minute, Limit: 100},
		},
		ClientRules: []domain.Rule{
			{Pattern: "premium-key", Rates: []domain.Rate{{Period: domain.Second, Limit: 50}}},
		},
		EndpointWhitelist: []string{"/health"},
	}
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryCounterStore()
	store.StartJanitor(ctx)

	svc := &application.Service{
		Engine:   &application.Engine{Store: store},
		Policies: application.StaticPolicy{P: examplePolicy()},
		Logger:   infra.NewZapThrottleLogger(logger.Named("throttle"), 5, 10),
		Label:    "example-server",
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(throttle.InflightLimit(throttle.InflightOptions{Max: 50, Logger: logger}))
	r.Use(throttle.Middleware(throttle.Options{
		Service:            svc,
		Adapter:            throttle.DirectAdapter{KeyHeader: "X-Api-Key"},
		AddThrottleHeaders: true,
		Logger:             logger,
	}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
