package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/dropDatabas3/twitterauth/internal/rate"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/ticket"
)

// RouterDeps contiene las dependencias del router.
type RouterDeps struct {
	Auth   *strategy.Middleware
	Issuer *ticket.Issuer
	// Tickets marca los jti ya canjeados; nil => sin control de replay.
	Tickets cache.Client
	Limiter rate.Limiter // nil => sin rate limit

	// TrustProxy habilita X-Forwarded-For para la IP del cliente.
	TrustProxy bool

	// Ready se chequea en /readyz (cache, redis, ...).
	Ready map[string]Pinger

	// Metrics != nil se monta en MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter arma el handler completo: middlewares de infra, fases de auth y
// rutas propias.
//
//	GET  /healthz, /readyz
//	GET  <prefix>/strategies
//	GET  <failure path>
//	POST <prefix>/ticket/verify
//	GET  <prefix>/<strategy>, <callback path>   (strategy.Middleware)
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithClientIP(deps.TrustProxy))
	r.Use(WithRecover)
	r.Use(WithSecurityHeaders)
	r.Use(WithLogging)
	r.Use(WithMetrics)

	if deps.Limiter != nil {
		paths := make([]string, 0, len(deps.Auth.Strategies()))
		for _, name := range deps.Auth.Strategies() {
			paths = append(paths, deps.Auth.RequestPath(name))
		}
		r.Use(WithRateLimit(deps.Limiter, paths...))
	}
	r.Use(deps.Auth.Handler)

	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", readyzHandler(deps.Ready))
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}

	if fp := deps.Auth.FailureEndpoint(); strings.HasPrefix(fp, "/") {
		r.Get(fp, failureHandler)
	}
	r.Get(deps.Auth.Prefix()+"/strategies", strategiesHandler(deps.Auth))
	if deps.Issuer != nil {
		r.Post(deps.Auth.Prefix()+"/ticket/verify", verifyTicketHandler(deps.Issuer, deps.Tickets))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, ErrNotFound)
	})
	return r
}
