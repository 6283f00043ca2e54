package api

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimiter_Middleware(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = rate.Limit(1)
		c.RateLimitBurst = 2
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"), "limits are per client")
}

func TestRateLimiter_Eviction(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	rl.maxVisitors = 2
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Second)
	rl.Allow("b")
	now = now.Add(time.Second)
	rl.Allow("c")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.visitors, 2)
	assert.NotContains(t, rl.visitors, "a", "oldest visitor evicted")
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = rate.Limit(1)
		c.RateLimitBurst = 1
		c.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	})

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
			req.Header.Set("X-Real-IP", forwarded)
		}
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.7:4000", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.7:4000", "203.0.113.1"),
		"an untrusted client cannot pick a fresh bucket with a forged header")
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.7:4000", "203.0.113.2"))

	assert.Equal(t, http.StatusOK, send("10.0.0.5:4000", "203.0.113.1"), "trusted proxy reports the client")
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.6:4000", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.5:4000", "203.0.113.2"))
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	}
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		trusted []netip.Prefix
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", trusted, "192.0.2.1"},
		{"no port", nil, "192.0.2.7", trusted, "192.0.2.7"},
		{"untrusted peer ignores forwarded", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "192.0.2.1:80", trusted, "192.0.2.1"},
		{"untrusted peer ignores real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.1:80", trusted, "192.0.2.1"},
		{"no trusted proxies", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:80", nil, "10.0.0.1"},
		{"trusted peer", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:80", trusted, "203.0.113.9"},
		{"rightmost untrusted hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 203.0.113.9, 10.0.0.2"}, "10.0.0.1:80", trusted, "203.0.113.9"},
		{"all hops trusted", map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"}, "10.0.0.1:80", trusted, "10.0.0.3"},
		{"invalid forwarded falls through", map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.4"}, "10.0.0.1:80", trusted, "198.51.100.4"},
		{"trusted peer without headers", nil, "10.0.0.1:80", trusted, "10.0.0.1"},
		{"ipv6 proxy", map[string]string{"X-Forwarded-For": "2001:db9::1"}, "[2001:db8::5]:443", trusted, "2001:db9::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.CORS = CORSConfig{AllowedOrigins: []string{"https://app.example"}, AllowCredentials: true, MaxAge: 600}
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/carbon/calculate", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
