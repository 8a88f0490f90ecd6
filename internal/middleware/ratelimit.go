package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP. Idle clients are forgotten
// after two cleanup intervals.
type RateLimiter struct {
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	logger          *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter allows perMinute requests per minute per IP, bursting up to
// perMinute, and starts the cleanup loop. Call Stop when done.
func NewRateLimiter(perMinute int, logger *zap.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{
		limit:           rate.Limit(float64(perMinute) / 60.0),
		burst:           perMinute,
		cleanupInterval: 5 * time.Minute,
		logger:          logger,
		clients:         make(map[string]*clientLimiter),
		stopCh:          make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.get(ip).Allow() {
			rl.logger.Warn("rate limit exceeded", zap.String("remote_ip", ip), zap.String("path", r.URL.Path))
			writeRateLimited(w, rl.limit)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientCount is the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastAccess = time.Now()
	return c.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.cleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastAccess) > ttl {
			delete(rl.clients, ip)
		}
	}
}

// clientIP is the request's remote address without the port. It is the
// socket peer unless the router trusts proxy headers and ran chi's RealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeRateLimited(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1.0 / float64(limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{Detail: "Too many requests. Please try again later."})
}
