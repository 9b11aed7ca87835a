package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

type rateBucket struct {
	count   int
	resetAt time.Time
}

// LoginRateLimiter is a fixed-window per-address counter guarding the login
// endpoint. Buckets live only in process memory; a restart clears them. It is
// an abuse deterrent, not a security boundary.
type LoginRateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	buckets     map[string]rateBucket
	maxBuckets  int
}

func NewLoginRateLimiter(maxAttempts int, window time.Duration) *LoginRateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}

	return &LoginRateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		buckets:     make(map[string]rateBucket),
		maxBuckets:  5000,
	}
}

// Check counts one attempt from the given address. When denied,
// retryAfterSec is the whole-second ceiling until the window resets.
func (l *LoginRateLimiter) Check(addr string) (allowed bool, retryAfterSec int) {
	return l.check(addr, time.Now())
}

func (l *LoginRateLimiter) check(addr string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[addr]
	if !ok || now.After(b.resetAt) {
		l.buckets[addr] = rateBucket{count: 1, resetAt: now.Add(l.window)}
		l.sweep(now)
		return true, 0
	}

	if b.count < l.maxAttempts {
		b.count++
		l.buckets[addr] = b
		return true, 0
	}

	remaining := b.resetAt.Sub(now)
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// sweep drops expired buckets once the map grows past the cap. Caller holds
// the mutex.
func (l *LoginRateLimiter) sweep(now time.Time) {
	if len(l.buckets) <= l.maxBuckets {
		return
	}
	for addr, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, addr)
		}
	}
}

// Reset clears all buckets.
func (l *LoginRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]rateBucket)
}

// ClientAddr resolves the client address for rate limiting: first
// X-Forwarded-For entry, then X-Real-Ip, then a fixed loopback fallback.
// Without a proxy every caller shares one bucket; that simplification is
// deliberate.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		return xri
	}
	return "127.0.0.1"
}
