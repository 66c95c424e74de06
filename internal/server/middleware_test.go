package server

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Len(t, rr.Header().Get("X-Request-Id"), 32)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rr = env.do(req)
	assert.Equal(t, "client-supplied", rr.Header().Get("X-Request-Id"))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, func(o *envOptions) { o.cfg.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	rr = env.do(req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// A rotated X-Forwarded-For from an untrusted peer does not reset it.
	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	rr = env.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimitMiddleware_TrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(o *envOptions) {
		o.cfg.RateLimitPerMinute = 1
		o.cfg.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	})

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/live", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := env.do(req)
		require.Equal(t, http.StatusOK, rr.Code, ip)
	}

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	rr := env.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	ok, _ := rl.allow("203.0.113.1")
	assert.True(t, ok)
	ok, _ = rl.allow("203.0.113.1")
	assert.True(t, ok)
	ok, wait := rl.allow("203.0.113.1")
	assert.False(t, ok)
	assert.InDelta(t, 30, wait.Seconds(), 0.01)

	now = now.Add(31 * time.Second)
	ok, _ = rl.allow("203.0.113.1")
	assert.True(t, ok)
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(10, time.Minute)
	rl.now = func() time.Time { return now }

	rl.allow("203.0.113.1")
	now = now.Add(90 * time.Second)
	rl.allow("203.0.113.2")
	now = now.Add(time.Minute)

	assert.Equal(t, 1, rl.sweep())
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "203.0.113.2")
}

func TestResolveClientIP(t *testing.T) {
	proxies := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8:ffff::/48"),
	}

	tests := []struct {
		name    string
		xff     string
		xri     string
		remote  string
		trusted []netip.Prefix
		want    string
	}{
		{"forwarded chain via proxy", "198.51.100.1, 10.0.0.1", "", "10.0.0.2:5000", proxies, "198.51.100.1"},
		{"spoofed leftmost hop ignored", "1.2.3.4, 198.51.100.1", "", "10.0.0.2:5000", proxies, "198.51.100.1"},
		{"all hops trusted", "10.0.0.5, 10.0.0.1", "", "10.0.0.2:5000", proxies, "10.0.0.5"},
		{"real ip via proxy", "", "198.51.100.2", "10.0.0.2:5000", proxies, "198.51.100.2"},
		{"headers from untrusted peer", "198.51.100.1", "198.51.100.2", "203.0.113.5:443", proxies, "203.0.113.5"},
		{"no proxies configured", "198.51.100.1", "", "10.0.0.2:5000", nil, "10.0.0.2"},
		{"remote addr", "", "", "203.0.113.5:443", nil, "203.0.113.5"},
		{"ipv6 remote", "", "", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"ipv6 proxy", "198.51.100.3", "", "[2001:db8:ffff::1]:443", proxies, "198.51.100.3"},
		{"no port", "", "", "203.0.113.6", nil, "203.0.113.6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, resolveClientIP(req, tt.trusted))
		})
	}
}
