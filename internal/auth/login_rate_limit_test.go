package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiter_AllowsUpToMax(t *testing.T) {
	l := NewLoginRateLimiter(10, 5*time.Minute)
	now := time.Now()

	for i := 1; i <= 10; i++ {
		allowed, _ := l.check("1.2.3.4", now)
		assert.True(t, allowed, "attempt %d should be allowed", i)
	}

	allowed, retryAfter := l.check("1.2.3.4", now)
	require.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 300)
}

func TestLoginRateLimiter_WindowExpiryResets(t *testing.T) {
	l := NewLoginRateLimiter(2, time.Minute)
	now := time.Now()

	l.check("addr", now)
	l.check("addr", now)
	allowed, _ := l.check("addr", now)
	require.False(t, allowed)

	allowed, _ = l.check("addr", now.Add(time.Minute+time.Second))
	assert.True(t, allowed)
}

func TestLoginRateLimiter_IsolatesAddresses(t *testing.T) {
	l := NewLoginRateLimiter(1, time.Minute)
	now := time.Now()

	l.check("a", now)
	allowed, _ := l.check("a", now)
	require.False(t, allowed)

	allowed, _ = l.check("b", now)
	assert.True(t, allowed)
}

func TestLoginRateLimiter_RetryAfterNeverZero(t *testing.T) {
	l := NewLoginRateLimiter(1, time.Minute)
	now := time.Now()

	l.check("addr", now)

	// Just before the window edge the remaining time rounds up to one second.
	allowed, retryAfter := l.check("addr", now.Add(time.Minute-time.Millisecond))
	require.False(t, allowed)
	assert.Equal(t, 1, retryAfter)
}

func TestLoginRateLimiter_Reset(t *testing.T) {
	l := NewLoginRateLimiter(1, time.Minute)
	now := time.Now()

	l.check("addr", now)
	allowed, _ := l.check("addr", now)
	require.False(t, allowed)

	l.Reset()
	allowed, _ = l.check("addr", now)
	assert.True(t, allowed)
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "forwarded for first entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:    "203.0.113.7",
		},
		{
			name:    "real ip fallback",
			headers: map[string]string{"X-Real-Ip": "198.51.100.2"},
			want:    "198.51.100.2",
		},
		{
			name:    "loopback default",
			headers: nil,
			want:    "127.0.0.1",
		},
		{
			name:    "empty forwarded for falls through",
			headers: map[string]string{"X-Forwarded-For": " , ", "X-Real-Ip": "198.51.100.9"},
			want:    "198.51.100.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientAddr(req))
		})
	}
}
