package rpc

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles RPC callers per client IP with a token bucket. A
// non-positive per-minute limit disables throttling entirely.
type rateLimiter struct {
	log       *slog.Logger
	perMinute float64
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newRateLimiter(perMinute float64, burst int, log *slog.Logger) *rateLimiter {
	if log == nil {
		log = slog.Default()
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		log:       log,
		perMinute: perMinute,
		burst:     burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

func (r *rateLimiter) middleware(next http.Handler) http.Handler {
	if r == nil || r.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := clientID(req)
		if !r.obtainLimiter(id).Allow() {
			r.log.Warn("rate limit exceeded", slog.String("client", id))
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeInvalidRequest, "invalid_request", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *rateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.visitors[id]; ok {
		return limiter
	}
	perSecond := r.perMinute / 60.0
	limiter := rate.NewLimiter(rate.Limit(perSecond), r.burst)
	r.visitors[id] = limiter
	go r.expire(id)
	return limiter
}

func (r *rateLimiter) expire(id string) {
	time.Sleep(5 * time.Minute)
	r.mu.Lock()
	delete(r.visitors, id)
	r.mu.Unlock()
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if comma := strings.IndexByte(forwarded, ','); comma > 0 {
			first = forwarded[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
