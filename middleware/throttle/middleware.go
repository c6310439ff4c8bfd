package throttle

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
)

// RequestIDHeader é lido da requisição (ou gerado) e devolvido na resposta.
const RequestIDHeader = "X-Request-Id"

type Options struct {
	Service              *application.Service
	Adapter              RequestAdapter
	RejectStatus         int
	QuotaExceededMessage string
	AddThrottleHeaders   bool
	Logger               *zap.Logger
	Metrics              *Metrics
}

// Middleware avalia cada requisição de forma síncrona antes do próximo
// handler. Erros de avaliação são logados e nunca viram 5xx: o veredito
// devolvido pelo Service já decide.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.QuotaExceededMessage == "" {
		opts.QuotaExceededMessage = DefaultQuotaExceededMessage
	}
	if opts.Adapter == nil {
		opts.Adapter = DirectAdapter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			id := opts.Adapter.Identity(r)
			start := time.Now()
			v, err := opts.Service.Decide(r.Context(), application.Request{Identity: id, RequestID: requestID})
			opts.Metrics.observe(v, err, time.Since(start))
			if err != nil {
				opts.Logger.Warn("throttle evaluation diagnostic",
					zap.String("request_id", requestID),
					zap.String("client_ip", id.ClientIP),
					zap.String("endpoint", id.Endpoint),
					zap.Bool("allowed", v.Allowed),
					zap.Error(err))
			}

			if !v.Allowed {
				h := w.Header()
				h.Set("Retry-After", formatInt64(v.RetryAfterSeconds()))
				if opts.AddThrottleHeaders {
					h.Set("X-Throttle-Limit", formatInt64(v.Limit))
					h.Set("X-Throttle-Period", v.Period.String())
				}
				http.Error(w, FormatQuotaMessage(opts.QuotaExceededMessage, v.Limit, v.Period), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
