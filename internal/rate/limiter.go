// Package rate limita los request phases por cliente. RedisLimiter comparte
// la cuenta entre réplicas; MemoryLimiter sirve para un solo proceso.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result de una consulta al limiter. RetryAfter sólo se llena cuando !Allowed.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

// Limiter decide si key puede hacer un request más.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits en una ventana fija por key. La key de redis nace
// con su expiración dentro de la misma transacción que la incrementa, así
// nunca queda un contador sin TTL.
type RedisLimiter struct {
	Client rdb.UniversalClient
	Prefix string
	Max    int64
	Window time.Duration

	now func() time.Time
}

func NewRedisLimiter(client rdb.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

// windowKey identifica la ventana actual de key (prefix + key + inicio de
// ventana) y devuelve cuánto le queda.
func (l *RedisLimiter) windowKey(key string, now time.Time) (string, time.Duration) {
	start := now.UTC().Truncate(l.Window)
	left := start.Add(l.Window).Sub(now)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), start.Unix()), left
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	k, left := l.windowKey(key, now())

	var (
		hits *rdb.IntCmd
		ttl  *rdb.DurationCmd
	)
	_, err := l.Client.TxPipelined(ctx, func(p rdb.Pipeliner) error {
		// SET NX EX crea el contador con TTL; si ya existe no lo toca.
		p.SetNX(ctx, k, 0, left)
		hits = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}

	res := Result{
		CurrentHits: hits.Val(),
		WindowTTL:   ttl.Val(),
	}
	if res.WindowTTL <= 0 {
		res.WindowTTL = left
	}
	res.Allowed = res.CurrentHits <= l.Max
	if res.Allowed {
		res.Remaining = l.Max - res.CurrentHits
		return res, nil
	}
	res.RetryAfter = res.WindowTTL.Round(time.Second)
	if res.RetryAfter < time.Second {
		res.RetryAfter = time.Second
	}
	return res, nil
}
