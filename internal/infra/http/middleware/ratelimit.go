package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/apierror"
	"github.com/scanforge/api/pkg/logger"
)

// ipLimiter tracks one client's limiter and when it was last used.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a per-client-IP token bucket. It returns the
// middleware and a stop function that ends the idle-entry janitor.
func RateLimit(cfg *config.RateLimitConfig, log *logger.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		noop := func(next http.Handler) http.Handler { return next }
		return noop, func() {}
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*ipLimiter)
		done     = make(chan struct{})
	)

	// Evict limiters idle for several minutes so the map tracks active
	// clients only.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu.Lock()
				for ip, l := range limiters {
					if time.Since(l.lastSeen) > 5*time.Minute {
						delete(limiters, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)}
			limiters[ip] = l
		}
		l.lastSeen = time.Now()
		return l.limiter
	}

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !limiterFor(ip).Allow() {
				log.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				apierror.TooManyRequests("rate limit exceeded").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	return mw, stop
}
