package handler

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RateLimiter is satisfied by *ratelimit.Limiter. State lives outside the
// process so every instance enforces the same budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// clientIP strips the port from RemoteAddr. Behind a proxy RemoteAddr is
// rewritten by handlers.ProxyHeaders before it gets here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects a client that exceeded its budget with 429.
// When the limiter is unreachable requests pass.
func (h *Handler) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.RateLimiter == nil || h.opts.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		allowed, err := h.RateLimiter.Allow(r.Context(), "ip:"+ip, h.opts.RateLimit, h.opts.RateWindow)
		if err != nil {
			h.Logger.Warn("rate limiter unavailable", zap.String("client_ip", ip), zap.Error(err))
		}
		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	}
}
