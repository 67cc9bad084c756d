// Package cache provee un key/value con TTL para estado efímero del login
// (sesiones server-side, ventanas de rate limit).
//
// Backends:
//   - memory (go-cache, in-process, dev/testing)
//   - redis (distribuido, producción)
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl <= 0 significa sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda sólo si la key no existe. false => ya existía.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // sólo memory

	// Redis reutiliza un cliente ya abierto (p.ej. compartido con el rate
	// limiter). Con nil y Driver "redis", New disca Addr.
	Redis *redis.Client
}

// ErrNotFound se devuelve cuando la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente según cfg.Driver. Drivers desconocidos caen a memory.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		if cfg.Redis != nil {
			return NewRedisFromClient(cfg.Redis, cfg.Prefix), nil
		}
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
