package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// limiter tracks fixed request windows per client. Expired windows are evicted
// whenever a fresh one is opened, so the map stays bounded by the set of
// clients active within one period.
type limiter struct {
	mu      sync.Mutex
	limit   int
	per     time.Duration
	windows map[string]*window
}

func newLimiter(limit int, per time.Duration) *limiter {
	return &limiter{limit: limit, per: per, windows: make(map[string]*window)}
}

// allow reports whether the client may proceed; when denied it also returns
// the whole seconds until the window resets.
func (l *limiter) allow(ip string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[ip]
	if !ok || now.After(win.resetAt) {
		l.evictExpired(now)
		win = &window{resetAt: now.Add(l.per)}
		l.windows[ip] = win
	}
	if win.count >= l.limit {
		return false, int(win.resetAt.Sub(now).Seconds()) + 1
	}
	win.count++
	return true, 0
}

func (l *limiter) evictExpired(now time.Time) {
	for ip, win := range l.windows {
		if now.After(win.resetAt) {
			delete(l.windows, ip)
		}
	}
}

// RateLimit caps requests per client IP inside a fixed window. Generation
// submissions cost real money upstream, so the create endpoint sits behind
// this.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	l := newLimiter(limit, per)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := l.allow(clientIP(r), time.Now())
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			candidate := strings.TrimSpace(part)
			if candidate != "" && net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}
	return "unknown"
}
