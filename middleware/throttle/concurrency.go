package throttle

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/infra"
)

// InflightOptions configura o limite de requisições simultâneas.
type InflightOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// InflightLimit recusa a requisição quando já há Max requisições em
// atendimento e nenhuma vaga abre dentro de AcquireTimeout. Com Max <= 0 é
// um no-op.
func InflightLimit(opts InflightOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	slots := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := slots.Acquire(r.Context())
			if !ok {
				opts.Logger.Debug("inflight limit reached",
					zap.Int("max", opts.Max),
					zap.String("path", r.URL.Path))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
