package api

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	rctx "github.com/busybox42/replyaddr/internal/context"
	"github.com/busybox42/replyaddr/internal/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		config          RateLimitConfig
		requests        int
		expectedAllowed int
		expectedBlocked int
	}{
		{
			name:            "disabled rate limiting",
			config:          RateLimitConfig{Enabled: false, RequestsPerSecond: 1.0, Burst: 2},
			requests:        10,
			expectedAllowed: 10,
		},
		{
			name:            "burst allows initial requests",
			config:          RateLimitConfig{Enabled: true, RequestsPerSecond: 1.0, Burst: 3},
			requests:        5,
			expectedAllowed: 3,
			expectedBlocked: 2,
		},
		{
			name:            "default values when zero",
			config:          RateLimitConfig{Enabled: true},
			requests:        25,
			expectedAllowed: 20,
			expectedBlocked: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimitMiddleware(tt.config)
			defer rl.Stop()

			middleware := rl.Limit(okHandler)

			allowed, blocked := 0, 0
			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.RemoteAddr = "192.168.1.1:1234"
				rr := httptest.NewRecorder()
				middleware.ServeHTTP(rr, req)

				switch rr.Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
					blocked++
					assert.Equal(t, "1", rr.Header().Get("Retry-After"))
				}
			}

			assert.Equal(t, tt.expectedAllowed, allowed)
			assert.Equal(t, tt.expectedBlocked, blocked)
		})
	}
}

func TestRateLimitPerIP(t *testing.T) {
	rl := NewRateLimitMiddleware(RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2})
	defer rl.Stop()
	middleware := rl.Limit(okHandler)

	for _, ip := range []string{"192.168.1.1:1234", "192.168.1.2:1234", "10.0.0.1:5678"} {
		allowed := 0
		for i := 0; i < 4; i++ {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = ip
			rr := httptest.NewRecorder()
			middleware.ServeHTTP(rr, req)
			if rr.Code == http.StatusOK {
				allowed++
			}
		}
		assert.Equal(t, 2, allowed, ip)
	}
}

func TestRateLimitEvictsIdle(t *testing.T) {
	rl := NewRateLimitMiddleware(RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1})
	defer rl.Stop()

	rl.getLimiter("192.0.2.1")
	rl.getLimiter("192.0.2.2")

	rl.evictIdle(time.Now())
	assert.Len(t, rl.limiters, 2)

	rl.evictIdle(time.Now().Add(rl.idleTimeout + time.Second))
	assert.Empty(t, rl.limiters)

	// Stop is idempotent
	rl.Stop()
}

func TestExtractIP(t *testing.T) {
	trusted := parseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1", "bogus"})
	require.Len(t, trusted, 2)

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct", "203.0.113.5:1000", "", "", "203.0.113.5"},
		{"untrusted proxy header ignored", "203.0.113.5:1000", "198.51.100.1", "", "203.0.113.5"},
		{"trusted proxy", "10.1.2.3:1000", "198.51.100.1", "", "198.51.100.1"},
		{"rightmost untrusted", "10.1.2.3:1000", "198.51.100.1, 198.51.100.2, 10.0.0.7", "", "198.51.100.2"},
		{"real ip fallback", "192.0.2.1:1000", "", "198.51.100.9", "198.51.100.9"},
		{"no port", "203.0.113.5", "", "", "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, extractIP(req, trusted))
		})
	}

	assert.False(t, isTrustedProxy("not-an-ip", trusted))
	assert.True(t, isTrustedProxy("10.255.0.1", trusted))
	assert.False(t, isTrustedProxy("192.0.2.2", []*net.IPNet{trusted[1]}))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = rctx.RequestID(r.Context())
		assert.Equal(t, "192.0.2.1:1", rctx.RemoteAddr(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req.Header.Set(RequestIDHeader, "upstream-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "upstream-42", seen)

	req.Header.Set(RequestIDHeader, "bad\r\nid")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.NotEqual(t, "bad\r\nid", seen)
	_, err = uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestLoggingMiddlewareRequestLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "text"}, &logs)

	h := RequestIDMiddleware(LoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx.Logger(r.Context()).Info("handler event")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	req.Header.Set(RequestIDHeader, "req-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	lines := bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, string(line), "request_id=req-7")
		assert.Contains(t, string(line), "remote_addr=192.0.2.7:4242")
	}
	assert.Contains(t, string(lines[0]), "handler event")
	assert.Contains(t, string(lines[1]), "status=418")
}

func TestAuthMiddlewareBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	require.NoError(t, err)

	am := NewAuthMiddleware([]string{"not-a-hash", string(hash)})
	require.True(t, am.Enabled())

	var keyID string
	h := am.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyID = rctx.APIKeyID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer s3cret-key")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "key-1", keyID)

	req.Header.Set("Authorization", "Bearer other")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	am := NewAuthMiddleware(nil)
	assert.False(t, am.Enabled())

	rr := httptest.NewRecorder()
	am.RequireAuth(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
