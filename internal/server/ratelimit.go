package server

import (
	"net"
	"net/http"
	"sync"

	"github.com/dl-alexandre/batfiles/internal/utils"
	"golang.org/x/time/rate"
)

// maxVisitors bounds the per-IP table; idle entries are pruned past it
const maxVisitors = 10000

// RateLimiter limits requests per client IP
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing r requests per second with burst b per IP
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.visitors[ip]
	if !exists {
		if len(rl.visitors) >= maxVisitors {
			rl.pruneLocked()
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

// pruneLocked drops visitors whose bucket has refilled completely
func (rl *RateLimiter) pruneLocked() {
	for ip, l := range rl.visitors {
		if l.Tokens() >= float64(rl.burst) {
			delete(rl.visitors, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !rl.getVisitor(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Success: false,
				Error: errorBody{
					Kind:      string(utils.KindTransient),
					Code:      utils.ErrCodeRateLimited,
					Message:   "Rate limit exceeded",
					Retryable: true,
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
