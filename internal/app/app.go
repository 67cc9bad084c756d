// Package app arma el servicio a partir de la config: cache, sesiones,
// limiter, issuer de tickets, strategies y router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/dropDatabas3/twitterauth/internal/config"
	httpx "github.com/dropDatabas3/twitterauth/internal/http"
	"github.com/dropDatabas3/twitterauth/internal/observability/logger"
	"github.com/dropDatabas3/twitterauth/internal/rate"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/strategy/oauth1"
	"github.com/dropDatabas3/twitterauth/internal/strategy/twitter"
	"github.com/dropDatabas3/twitterauth/internal/ticket"
)

// Container agrupa lo que queda vivo mientras corre el servicio.
type Container struct {
	Config  *config.Config
	Handler http.Handler
	Cache   cache.Client
	Issuer  *ticket.Issuer
	Auth    *strategy.Middleware
	Limiter rate.Limiter

	closers []func() error
}

// Options permite inyectar colaboradores (tests).
type Options struct {
	// Registry para métricas; nil => default registerer.
	Registry *prometheus.Registry
	// Redis ya construido; si es nil y cache.kind=redis se disca con la config.
	Redis *redis.Client
	// Consumer/Profiles reemplazan al cliente real de Twitter.
	Consumer oauth1.Consumer
	Profiles twitter.ProfileFetcher
}

// Build arma el Container. Close libera lo que Build abrió.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	log := logger.From(ctx).With(logger.Component("app"))

	if cfg.Session.Secret == "" {
		log.Warn("session.secret empty, using a random key; sessions and tickets will not survive a restart")
	}
	keys, err := config.DeriveKeys(cfg.Session.Secret)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	// Cache + redis compartido
	var rdb *redis.Client
	if cfg.Cache.Kind == "redis" {
		rdb = opts.Redis
		if rdb == nil {
			rdb, err = cache.DialRedis(cache.Config{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			if err != nil {
				return nil, err
			}
			c.closers = append(c.closers, rdb.Close)
		}
	}
	ccfg := cache.Config{Driver: cfg.Cache.Kind, Redis: rdb, Prefix: cfg.Cache.Redis.Prefix}
	if rdb == nil {
		ccfg.Prefix = cfg.App.Name
		ccfg.DefaultTTL = cfg.Cache.Memory.DefaultTTL
	}
	if c.Cache, err = cache.New(ccfg); err != nil {
		return nil, err
	}
	if rdb == nil {
		c.closers = append(c.closers, c.Cache.Close)
	}

	// Sesiones
	store, err := newSessionStore(cfg, keys, c.Cache)
	if err != nil {
		return nil, err
	}

	// Rate limit
	if cfg.Rate.Enabled {
		if rdb != nil {
			c.Limiter = rate.NewRedisLimiter(rdb, cfg.Cache.Redis.Prefix+":rl:", cfg.Rate.Limit, cfg.Rate.Window)
		} else {
			c.Limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, cfg.Rate.Window)
		}
	}

	// Tickets
	c.Issuer, err = ticket.NewIssuer(cfg.Ticket.Issuer, cfg.Ticket.TTL, keys.TicketSeed)
	if err != nil {
		return nil, err
	}

	// Strategies
	deps := twitter.Deps{Consumer: opts.Consumer, Profiles: opts.Profiles}
	if deps.Consumer == nil {
		if cfg.Twitter.ClientID == "" {
			log.Warn("twitter client_id empty, request phase will be rejected by the provider")
		}
		deps.Consumer = oauth1.NewConsumer(cfg.Twitter.ClientID, cfg.Twitter.ClientSecret)
	}
	if deps.Profiles == nil {
		deps.Profiles = twitter.NewAPIProfileFetcher(cfg.Twitter.ClientOptions.Site, cfg.Twitter.ProfilePath)
	}
	c.Auth = &strategy.Middleware{
		PathPrefix:  cfg.Auth.PathPrefix,
		FailurePath: cfg.Auth.FailurePath,
		FullHost:    cfg.Server.PublicURL,
		TrustProxy:  cfg.Server.TrustProxy,
		SessionName: cfg.Session.Name,
		Store:       store,
		OnSuccess:   httpx.SuccessHandler(c.Issuer, cfg.Auth.SuccessRedirect),
		OnPhase:     httpx.RecordAuthPhase,
	}
	c.Auth.Register(cfg.Twitter.Name, twitter.NewFactory(cfg.Twitter, deps))

	// Métricas
	var metrics http.Handler
	if cfg.Metrics.Enabled {
		metrics, err = httpx.RegisterMetrics(httpx.MetricsConfig{Registry: opts.Registry})
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	c.Handler = httpx.NewRouter(httpx.RouterDeps{
		Auth:        c.Auth,
		Issuer:      c.Issuer,
		Tickets:     c.Cache,
		Limiter:     c.Limiter,
		TrustProxy:  cfg.Server.TrustProxy,
		Ready:       map[string]httpx.Pinger{"cache": c.Cache},
		Metrics:     metrics,
		MetricsPath: cfg.Metrics.Path,
	})

	log.Info("app built",
		logger.String("cache", cfg.Cache.Kind),
		logger.String("session_store", cfg.Session.Store),
		logger.Bool("rate_limit", cfg.Rate.Enabled),
		logger.Strategy(cfg.Twitter.Name),
	)
	ok = true
	return c, nil
}

func newSessionStore(cfg *config.Config, keys config.Keys, c cache.Client) (sessions.Store, error) {
	opts := sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Session.Secure || strings.HasPrefix(cfg.Server.PublicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
	switch cfg.Session.Store {
	case "cookie":
		s := sessions.NewCookieStore(keys.SessionHash, keys.SessionBlock)
		s.Options = &opts
		s.MaxAge(opts.MaxAge)
		return s, nil
	case "cache":
		s := strategy.NewCacheStore(c, keys.SessionHash, keys.SessionBlock)
		s.Options = &opts
		s.MaxAge(opts.MaxAge)
		return s, nil
	default:
		return nil, fmt.Errorf("session store %q not supported", cfg.Session.Store)
	}
}

// Close libera recursos en orden inverso.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
