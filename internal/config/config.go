package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/twitterauth/internal/strategy/twitter"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicURL (scheme://host) se usa para armar el callback por defecto
		// cuando el servicio corre detrás de un proxy.
		PublicURL       string        `yaml:"public_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustProxy: sólo con true se leen X-Forwarded-For/Proto/Host.
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"server"`

	Auth struct {
		PathPrefix  string `yaml:"path_prefix"`
		FailurePath string `yaml:"failure_path"`
		// SuccessRedirect vacío => el callback responde JSON {ticket, auth}
		SuccessRedirect string `yaml:"success_redirect"`
	} `yaml:"auth"`

	Session struct {
		Name   string `yaml:"name"`
		Secret string `yaml:"secret"`
		Store  string `yaml:"store"` // cookie | cache
		Secure bool   `yaml:"secure"`
		MaxAge int    `yaml:"max_age"` // segundos
	} `yaml:"session"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		Enabled bool          `yaml:"enabled"`
		Limit   int           `yaml:"limit"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate"`

	Ticket struct {
		Issuer string        `yaml:"issuer"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"ticket"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Twitter twitter.Options `yaml:"twitter"`
}

// Default devuelve la config con todos los defaults aplicados (sin env).
func Default() *Config {
	var c Config
	c.Metrics.Enabled = true
	c.applyDefaults()
	return &c
}

// Load lee el YAML en path (vacío => sólo defaults + env), aplica defaults,
// overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	c.Metrics.Enabled = true
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// env primero: defaults derivados (ticket.issuer, failure_path) ven los overrides
	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	c.App.Env = strings.ToLower(c.App.Env)
	if c.App.Name == "" {
		c.App.Name = "twitterauth"
	}
	if c.Log.Level == "" {
		if c.IsProd() {
			c.Log.Level = "info"
		} else {
			c.Log.Level = "debug"
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Auth.PathPrefix == "" {
		c.Auth.PathPrefix = twitter.DefaultPathPrefix
	}
	c.Auth.PathPrefix = "/" + strings.Trim(c.Auth.PathPrefix, "/")
	if c.Auth.FailurePath == "" {
		c.Auth.FailurePath = c.Auth.PathPrefix + "/failure"
	}
	if c.Session.Name == "" {
		c.Session.Name = "twitterauth_session"
	}
	if c.Session.Store == "" {
		c.Session.Store = "cookie"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 600
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 10 * time.Minute
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "twitterauth"
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 30
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Ticket.TTL == 0 {
		c.Ticket.TTL = 2 * time.Minute
	}
	if c.Ticket.Issuer == "" {
		if c.Server.PublicURL != "" {
			c.Ticket.Issuer = c.Server.PublicURL
		} else {
			c.Ticket.Issuer = c.App.Name
		}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Twitter.PathPrefix == "" {
		c.Twitter.PathPrefix = c.Auth.PathPrefix
	}
	c.Twitter = c.Twitter.WithDefaults()
}

// IsProd reports APP_ENV=prod|production.
func (c *Config) IsProd() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("PUBLIC_URL"); ok {
		c.Server.PublicURL = v
	}
	if v, ok := getEnvBool("SERVER_TRUST_PROXY"); ok {
		c.Server.TrustProxy = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// AUTH
	if v, ok := getEnvStr("AUTH_PATH_PREFIX"); ok {
		c.Auth.PathPrefix = v
	}
	if v, ok := getEnvStr("AUTH_FAILURE_PATH"); ok {
		c.Auth.FailurePath = v
	}
	if v, ok := getEnvStr("AUTH_SUCCESS_REDIRECT"); ok {
		c.Auth.SuccessRedirect = v
	}

	// TWITTER
	if v, ok := getEnvStr("TWITTER_CLIENT_ID"); ok {
		c.Twitter.ClientID = v
	}
	if v, ok := getEnvStr("TWITTER_CLIENT_SECRET"); ok {
		c.Twitter.ClientSecret = v
	}
	if v, ok := getEnvBool("TWITTER_USE_AUTHORIZE"); ok {
		c.Twitter.UseAuthorize = v
	}
	if v, ok := getEnvBool("TWITTER_SKIP_INFO"); ok {
		c.Twitter.SkipInfo = v
	}
	if v, ok := getEnvStr("TWITTER_IMAGE_SIZE"); ok {
		c.Twitter.ImageSize = v
	}
	if v, ok := getEnvStr("TWITTER_SITE"); ok {
		c.Twitter.ClientOptions.Site = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_SECRET"); ok {
		c.Session.Secret = v
	}
	if v, ok := getEnvStr("SESSION_STORE"); ok {
		c.Session.Store = strings.ToLower(v)
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT"); ok {
		c.Rate.Limit = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}

	// TICKET
	if v, ok := getEnvDur("TICKET_TTL"); ok {
		c.Ticket.TTL = v
	}
	if v, ok := getEnvStr("TICKET_ISSUER"); ok {
		c.Ticket.Issuer = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// Validate performs validation of critical configuration values
func (c *Config) Validate() error {
	var errs []error
	switch c.Session.Store {
	case "cookie", "cache":
	default:
		errs = append(errs, fmt.Errorf("session.store: unsupported %q (cookie|cache)", c.Session.Store))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			errs = append(errs, errors.New("cache.redis.addr: required when cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unsupported %q (memory|redis)", c.Cache.Kind))
	}
	if c.Rate.Enabled && (c.Rate.Limit <= 0 || c.Rate.Window <= 0) {
		errs = append(errs, errors.New("rate: limit and window must be positive"))
	}
	if c.Ticket.TTL < 0 {
		errs = append(errs, errors.New("ticket.ttl: must not be negative"))
	}
	if c.IsProd() {
		if c.Twitter.ClientID == "" || c.Twitter.ClientSecret == "" {
			errs = append(errs, errors.New("twitter: client_id and client_secret are required in prod"))
		}
		if len(c.Session.Secret) < 32 {
			errs = append(errs, errors.New("session.secret: at least 32 bytes required in prod"))
		}
	}
	return errors.Join(errs...)
}
