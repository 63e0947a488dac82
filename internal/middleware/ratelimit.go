package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/respond"
)

// idleEviction is how long a client may stay silent before its bucket is
// forgotten.
const idleEviction = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	logger  *slog.Logger

	now       func() time.Time
	lastSweep time.Time
}

// NewIPRateLimiter allows each client perSecond requests per second with the
// given burst. A burst below 1 is raised to 1 so the first request always
// passes.
func NewIPRateLimiter(perSecond float64, burst int, logger *slog.Logger) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleEviction {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > idleEviction {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
//
// The client address comes from r.RemoteAddr. Put chi's RealIP in front of
// this middleware when running behind a trusted proxy; the raw
// X-Forwarded-For header is never read here because any caller can set it.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			l.logger.Warn("rate limit exceeded", slog.String("client", ip))
			respond.Error(w, apperror.RateLimited(float64(l.limit)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit returns a per-client rate limiting middleware. perSecond <= 0
// disables limiting and returns a pass-through.
func RateLimit(perSecond float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return NewIPRateLimiter(perSecond, burst, logger).Middleware
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
