package handler

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks per-IP token buckets. Restoration is CPU bound, so one
// client cannot be allowed to monopolise the server.
type RateLimiter struct {
	visitors sync.Map
	rate     rate.Limit
	burst    int
	done     chan struct{}
}

// NewRateLimiter allows r requests per second per client with the given
// burst. A background goroutine evicts idle clients.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:  r,
		burst: burst,
		done:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now()
	v, loaded := rl.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: now})
	vis := v.(*visitor)
	if loaded {
		vis.lastSeen = now
	}
	return vis.limiter
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(visitorTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evict(time.Now())
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.visitors.Range(func(key, value any) bool {
		if now.Sub(value.(*visitor).lastSeen) > visitorTTL {
			rl.visitors.Delete(key)
		}
		return true
	})
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !rl.getLimiter(ip).Allow() {
			jsonError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
