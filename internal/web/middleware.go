package web

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/auth"
	"github.com/vbonduro/famshop/internal/metrics"
	"github.com/vbonduro/famshop/internal/service"
)

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request and, when collector is non-nil, records
// it under the matched mux pattern. ServeMux sets r.Pattern on the request
// it is handed, so the pattern is readable once next returns.
func requestLogger(logger *slog.Logger, collector *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
		if collector != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			collector.ObserveRequest(r.Method, route, rec.status, elapsed)
		}
	})
}

// RateLimiter keeps one token bucket per caller key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when rps is not positive, which disables
// limiting.
func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = rps
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may make a request now. A nil limiter allows
// everything.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = rl.now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// Cleanup drops buckets unused for longer than idle and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	if rl == nil {
		return 0
	}
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, v := range rl.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// clientKey is the bucket of an unauthenticated caller: the remote host,
// without the port, so new connections share one bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// identify resolves the bearer token and charges the caller's bucket. It
// returns nil after writing the 401 or 429 response itself.
func (s *Server) identify(w http.ResponseWriter, r *http.Request, fail func(http.ResponseWriter, *http.Request, error)) *http.Request {
	id := s.resolver.Resolve(r)
	key := clientKey(r)
	if id != nil {
		key = "user:" + id.UserID
	}
	if !s.limiter.Allow(key) {
		s.logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
		fail(w, r, apperr.RateLimited())
		return nil
	}
	if id == nil {
		fail(w, r, apperr.Unauthorized())
		return nil
	}
	return r.WithContext(auth.WithIdentity(r.Context(), id))
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor service.Actor)

// familyRoute guards a /api/families/{familyId}/... route: the caller must
// be a member of the family in the path. Errors use the raw body.
func (s *Server) familyRoute(h actorHandler) http.HandlerFunc {
	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		if e, ok := err.(*apperr.Error); ok && e.Code == apperr.CodeUnauthorized {
			s.writeUnauthorized(w)
			return
		}
		s.writeError(w, r, err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r = s.identify(w, r, fail)
		if r == nil {
			return
		}
		id := auth.FromContext(r.Context())
		actor, err := s.authz.ForFamily(r.Context(), id.UserID, r.PathValue("familyId"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, actor)
	}
}

// pluginRoute guards an /api/shopping/... route: the family comes from the
// caller's user record. Errors use the wrapped body.
func (s *Server) pluginRoute(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r = s.identify(w, r, s.writeWrappedError)
		if r == nil {
			return
		}
		id := auth.FromContext(r.Context())
		actor, err := s.authz.ForUser(r.Context(), id.UserID)
		if err != nil {
			s.writeWrappedError(w, r, err)
			return
		}
		h(w, r, actor)
	}
}
