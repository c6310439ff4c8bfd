package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

const maxPolicyBody = 1 << 20

// adminAPI expõe a política e os contadores para operação. Deve ficar numa
// porta interna: não há autenticação.
type adminAPI struct {
	svc       *application.Service
	repo      domain.PolicyRepository
	provider  *application.RepositoryProvider
	policyKey string
	gatherer  prometheus.Gatherer
	log       *zap.Logger
}

func (a *adminAPI) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	r.Get("/policy", a.getPolicy)
	r.Put("/policy", a.putPolicy)
	r.Get("/usage", a.usage)

	r.Delete("/counters", a.resetAll)
	r.Delete("/counters/identity", a.resetIdentity)
	return r
}

func (a *adminAPI) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, found, err := a.repo.Get(r.Context(), a.policyKey)
	if err != nil {
		a.fail(w, "get policy", err)
		return
	}
	if !found {
		http.Error(w, "policy not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *adminAPI) putPolicy(w http.ResponseWriter, r *http.Request) {
	var p domain.Policy
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPolicyBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		http.Error(w, "invalid policy: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		http.Error(w, "invalid policy: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.repo.Save(r.Context(), a.policyKey, &p); err != nil {
		a.fail(w, "save policy", err)
		return
	}
	if a.provider != nil {
		a.provider.Invalidate()
	}
	a.log.Info("policy updated", zap.String("key", a.policyKey), zap.Bool("enabled", p.Enabled()))
	w.WriteHeader(http.StatusNoContent)
}

type usageView struct {
	Period    string    `json:"period"`
	Limit     int64     `json:"limit"`
	Current   int64     `json:"current"`
	Remaining int64     `json:"remaining"`
	WindowEnd time.Time `json:"window_end"`
}

func (a *adminAPI) usage(w http.ResponseWriter, r *http.Request) {
	usage, err := a.svc.Usage(r.Context(), identityFromQuery(r))
	if err != nil {
		a.fail(w, "usage", err)
		return
	}
	out := make([]usageView, 0, len(usage))
	for _, u := range usage {
		out = append(out, usageView{
			Period:    strings.ToLower(u.Period.String()),
			Limit:     u.Limit,
			Current:   u.Current,
			Remaining: u.Remaining,
			WindowEnd: u.WindowEnd,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *adminAPI) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ResetAll(r.Context()); err != nil {
		a.fail(w, "reset all counters", err)
		return
	}
	a.log.Info("all counters cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) resetIdentity(w http.ResponseWriter, r *http.Request) {
	id := identityFromQuery(r)
	if err := a.svc.Reset(r.Context(), id); err != nil {
		a.fail(w, "reset counters", err)
		return
	}
	a.log.Info("counters reset",
		zap.String("client_ip", id.ClientIP),
		zap.String("client_key", id.ClientKey),
		zap.String("endpoint", id.Endpoint))
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) fail(w http.ResponseWriter, op string, err error) {
	a.log.Error("admin request failed", zap.String("op", op), zap.Error(err))
	http.Error(w, op+" failed", http.StatusInternalServerError)
}

func identityFromQuery(r *http.Request) domain.RequestIdentity {
	q := r.URL.Query()
	return domain.NewRequestIdentity(q.Get("ip"), q.Get("key"), q.Get("endpoint"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
