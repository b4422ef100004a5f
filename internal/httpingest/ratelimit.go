package httpingest

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ipLimiters hands out a per-remote-IP token bucket, so a single
// misbehaving tool cannot starve the ingress log table.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiters(perSec float64, burst int) *ipLimiters {
	if perSec <= 0 {
		perSec = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &ipLimiters{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(perSec), burst: burst}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitMiddleware throttles inbound requests per source IP ahead of the
// IngressLog write.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		if !s.limiters.allow(ip) {
			http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := indexComma(fwd); idx >= 0 {
			return fwd[:idx]
		}
		return fwd
	}
	host := r.RemoteAddr
	if idx := lastColon(host); idx >= 0 {
		return host[:idx]
	}
	return host
}

func indexComma(s string) int {
	for i, c := range s {
		if c == ',' {
			return i
		}
	}
	return -1
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
