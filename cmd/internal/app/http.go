package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"plaza/cmd/internal/auth/api"
	"plaza/cmd/internal/realtime"
	"plaza/cmd/internal/world"
)

type routes struct {
	log     Logger
	cfg     Config
	httpCfg api.Config

	pool     *pgxpool.Pool
	gatherer prometheus.Gatherer
	metrics  *httpMetrics

	auth  *api.Handler
	world *world.Handler
	ws    *realtime.WSGateway
}

func (rt routes) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.WithRequestID,
		WithRequestLogging(rt.log),
		rt.metrics.middleware,
		api.WithRecovery(rt.log),
	)
	if len(rt.httpCfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   rt.httpCfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           600,
		}).Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", rt.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	// The socket carries its own per-connection limiter.
	r.Get("/ws", rt.ws.ServeHTTP)

	general := api.NewIPLimiter(rt.httpCfg.RatePerSecond, rt.httpCfg.RateBurst, rt.httpCfg.RateIdleTTL, rt.httpCfg.TrustProxy)
	strict := api.NewIPLimiter(rt.httpCfg.AuthRatePerSecond, rt.httpCfg.AuthRateBurst, rt.httpCfg.RateIdleTTL, rt.httpCfg.TrustProxy)
	r.Group(func(r chi.Router) {
		r.Use(general.Middleware, authOnly(strict.Middleware))
		rt.auth.Register(r)
		rt.world.Register(r)
	})
	return r
}

// authOnly applies mw to /auth/* requests and passes everything else
// through untouched.
func authOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, api.RefreshCookiePath+"/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rt routes) handleReady(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.ReadinessRequireDB && rt.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}
	if rt.pool != nil {
		if err := PingDB(r.Context(), rt.pool, 2*time.Second); err != nil {
			rt.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
