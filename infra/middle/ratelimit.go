package middle

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/walletpay/infra/response"
)

// RateLimiter counts requests per client in fixed windows
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	rate    int
	window  time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	start time.Time
	hits  int
}

// NewRateLimiter allows rate requests per window for each client and starts
// a goroutine that forgets idle clients until Stop. A rate below one falls
// back to 100, a window below one to a minute.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	if rate <= 0 {
		rate = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	rl := &RateLimiter{
		clients: make(map[string]*clientWindow),
		rate:    rate,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Allow records a request from client and reports whether it fits the window
func (rl *RateLimiter) Allow(client string) bool {
	ok, _, _ := rl.take(client)
	return ok
}

// take records a request and returns whether it is allowed, how many requests
// are left and how long until the window resets.
func (rl *RateLimiter) take(client string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cw := rl.clients[client]
	if cw == nil || now.Sub(cw.start) > rl.window {
		cw = &clientWindow{start: now}
		rl.clients[client] = cw
	}
	reset := cw.start.Add(rl.window).Sub(now)

	if cw.hits >= rl.rate {
		return false, 0, reset
	}
	cw.hits++
	return true, rl.rate - cw.hits, reset
}

// Stop ends the sweeping goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict drops clients idle for two windows
func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.window)
	for client, cw := range rl.clients {
		if cw.start.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

// RateLimitMiddleware rejects clients over their window with 429 and
// advertises the limit on every response.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := rl.take(GetClientIP(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.rate))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Seconds()))))
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP extracts the real client IP
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.Trim(r.RemoteAddr, "[]")
	}
	if host == "::1" {
		return "127.0.0.1"
	}
	return host
}
