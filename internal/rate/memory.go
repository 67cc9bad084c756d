package rate

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"
)

// MemoryLimiter: token bucket por key, en proceso. Limit requests por Window
// con ráfaga = Limit. Los buckets sin uso se liberan después de 2*Window.
type MemoryLimiter struct {
	Max    int
	Window time.Duration

	mu      sync.Mutex
	buckets *gocache.Cache
	now     func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		Max:     max,
		Window:  window,
		buckets: gocache.New(2*window, 4*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) bucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*xrate.Limiter)
		l.buckets.SetDefault(key, lim)
		return lim
	}
	lim := xrate.NewLimiter(xrate.Every(l.Window/time.Duration(l.Max)), l.Max)
	l.buckets.SetDefault(key, lim)
	return lim
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := l.now()
	lim := l.bucket(strings.ReplaceAll(key, " ", "_"))

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{
			Allowed:    false,
			RetryAfter: delay,
			WindowTTL:  l.Window,
		}, nil
	}
	remaining := int64(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:     true,
		Remaining:   remaining,
		WindowTTL:   l.Window,
		CurrentHits: int64(l.Max) - remaining,
	}, nil
}
