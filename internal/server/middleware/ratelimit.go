package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an address may go unseen before its
	// limiter is eligible for eviction.
	limiterIdleTTL = 10 * time.Minute

	// limiterSweepAbove caps how many idle entries accumulate before a
	// sweep runs. Keeps the map bounded under client address churn.
	limiterSweepAbove = 1024
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per client address and evicts
// buckets that have sat idle past the TTL.
type limiterPool struct {
	rps   float64
	burst int

	mu      sync.Mutex
	clients map[string]*limiterEntry
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		rps:     rps,
		burst:   burst,
		clients: make(map[string]*limiterEntry),
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if len(p.clients) > limiterSweepAbove {
		p.sweep(now)
	}

	e, ok := p.clients[ip]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.clients[ip] = e
	}
	e.lastSeen = now
	return e.lim.Allow()
}

// sweep drops entries idle past the TTL. Caller holds the lock.
func (p *limiterPool) sweep(now time.Time) {
	for ip, e := range p.clients {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(p.clients, ip)
		}
	}
}

// RateLimit throttles requests per client IP with a token bucket. Compile
// requests are expensive; a single chatty client must not starve the warm
// container pool.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !pool.allow(ip) {
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
