package http

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Auth metrics
	authPhaseTotal   *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
)

// MetricsConfig: registry donde se registran las métricas. nil => default.
type MetricsConfig struct {
	Registry *prometheus.Registry
}

// RegisterMetrics inicializa las métricas (una sola vez por proceso) y devuelve
// el handler para /metrics.
func RegisterMetrics(cfg MetricsConfig) (http.Handler, error) {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		authPhaseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_phase_total",
			Help: "Fases de autenticación por strategy y resultado",
		}, []string{"strategy", "phase", "result"}) // result: success | <failure key>

		rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rechazadas por rate limit",
		}, []string{"path"})

		for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration, authPhaseTotal, rateLimitedTotal} {
			if err := registerCollector(registerer, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), nil
}

// WithMetrics instrumenta requests HTTP (contadores y latencia).
func WithMetrics(next http.Handler) http.Handler {
	if httpRequestsTotal == nil || httpRequestDuration == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(rec.code())).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// RecordAuthPhase cuenta una fase terminada. Se usa como strategy.Middleware.OnPhase.
func RecordAuthPhase(strategy, phase, result string) {
	if authPhaseTotal != nil {
		authPhaseTotal.WithLabelValues(strategy, phase, result).Inc()
	}
}

// RecordRateLimited cuenta un rechazo del rate limiter.
func RecordRateLimited(path string) {
	if rateLimitedTotal != nil {
		rateLimitedTotal.WithLabelValues(normalizePath(path)).Inc()
	}
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// normalizePath colapsa segmentos dinámicos a :param para acotar la cardinalidad.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
