package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/eventhub/internal/apperror"
)

// LoginWindow is the period the login attempt budget refills over.
const LoginWindow = 15 * time.Minute

// ErrorWriter renders an error response; handler.WriteError fits.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// LoginLimiter throttles login attempts per client IP with a token bucket:
// a burst of attempts, refilled evenly across LoginWindow.
type LoginLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
	writeErr  ErrorWriter
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows attempts per LoginWindow for each IP. attempts <= 0
// disables throttling.
func NewLoginLimiter(attempts int, writeErr ErrorWriter) *LoginLimiter {
	l := &LoginLimiter{
		clients:  make(map[string]*client),
		burst:    attempts,
		now:      time.Now,
		writeErr: writeErr,
	}
	if attempts > 0 {
		l.limit = rate.Every(LoginWindow / time.Duration(attempts))
	}
	l.lastSweep = l.now()
	return l
}

func (l *LoginLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > LoginWindow {
		// An IP idle for a full window has a full bucket again, so its entry
		// carries no state worth keeping.
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > LoginWindow {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware rejects over-budget requests with 429 and a Retry-After header.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	if l.burst <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := l.allow(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			l.writeErr(w, r, apperror.RateLimited("Too many login attempts, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. Proxy headers are only folded
// in when the server mounts chi's RealIP, which it does under TRUST_PROXY.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
