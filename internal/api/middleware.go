package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	rctx "github.com/busybox42/replyaddr/internal/context"
	"github.com/busybox42/replyaddr/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns every request an ID, reusing a well-formed
// incoming X-Request-ID
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := rctx.WithRequestID(r.Context(), id)
		ctx = rctx.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c == '-' || c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests and counts them by route template
func LoggingMiddleware(logger *slog.Logger, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			ctx := r.Context()
			reqLogger := logger.With(
				"request_id", rctx.RequestID(ctx),
				"remote_addr", rctx.RemoteAddr(ctx),
			)
			r = r.WithContext(rctx.WithLogger(ctx, reqLogger))

			next.ServeHTTP(wrapper, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(route, strconv.Itoa(wrapper.statusCode))

			reqLogger.Info("http request",
				"method", r.Method,
				"route", route,
				"status", wrapper.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	TrustedProxies    []string
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware provides per-IP rate limiting
type RateLimitMiddleware struct {
	limiters        map[string]*clientLimiter
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	enabled         bool
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	trustedProxies  []*net.IPNet
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(config RateLimitConfig) *RateLimitMiddleware {
	if !config.Enabled {
		return &RateLimitMiddleware{enabled: false}
	}

	requestsPerSecond := config.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10.0
	}

	burst := config.Burst
	if burst <= 0 {
		burst = 20
	}

	rl := &RateLimitMiddleware{
		limiters:        make(map[string]*clientLimiter),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		idleTimeout:     10 * time.Minute,
		cleanupInterval: time.Minute,
		enabled:         true,
		stopCleanup:     make(chan struct{}),
		trustedProxies:  parseTrustedProxies(config.TrustedProxies),
	}

	go rl.cleanupLoop()
	return rl
}

func parseTrustedProxies(proxies []string) []*net.IPNet {
	var trusted []*net.IPNet
	for _, proxy := range proxies {
		if strings.Contains(proxy, "/") {
			if _, cidr, err := net.ParseCIDR(proxy); err == nil {
				trusted = append(trusted, cidr)
			}
			continue
		}
		if ip := net.ParseIP(proxy); ip != nil {
			mask := net.CIDRMask(128, 128)
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			}
			trusted = append(trusted, &net.IPNet{IP: ip, Mask: mask})
		}
	}
	return trusted
}

// Stop stops the rate limiter cleanup goroutine
func (rl *RateLimitMiddleware) Stop() {
	if rl.enabled && rl.stopCleanup != nil {
		rl.stopOnce.Do(func() { close(rl.stopCleanup) })
	}
}

// cleanupLoop periodically removes idle limiters
func (rl *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.evictIdle(now)
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimitMiddleware) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.idleTimeout {
			delete(rl.limiters, ip)
		}
	}
}

// getLimiter returns the rate limiter for a given IP
func (rl *RateLimitMiddleware) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.limiters[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// extractIP extracts the client IP from the request.
// It only trusts X-Forwarded-For and X-Real-IP headers when the direct
// connection comes from a trusted proxy. When trusted, it returns the
// rightmost untrusted IP from the X-Forwarded-For chain.
func extractIP(r *http.Request, trustedProxies []*net.IPNet) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}

	if len(trustedProxies) > 0 && isTrustedProxy(remoteIP, trustedProxies) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ips := strings.Split(forwarded, ",")
			for i := len(ips) - 1; i >= 0; i-- {
				candidate := strings.TrimSpace(ips[i])
				if candidate != "" && !isTrustedProxy(candidate, trustedProxies) {
					return candidate
				}
			}
		}

		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}

	return remoteIP
}

// isTrustedProxy checks if an IP is within any of the trusted proxy CIDRs
func isTrustedProxy(ipStr string, trustedProxies []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range trustedProxies {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Limit applies rate limiting
func (rl *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.getLimiter(extractIP(r, rl.trustedProxies))
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// apiKey is one configured key, stored only as a hash
type apiKey struct {
	id     string
	sha256 []byte // set for hex SHA-256 entries
	bcrypt []byte // set for bcrypt entries
}

// AuthMiddleware checks bearer API keys against configured hashes
type AuthMiddleware struct {
	keys []apiKey
}

// NewAuthMiddleware creates an authentication middleware from hex SHA-256
// or bcrypt hashes. Entries in neither form are skipped.
func NewAuthMiddleware(hashes []string) *AuthMiddleware {
	am := &AuthMiddleware{}
	for i, h := range hashes {
		key := apiKey{id: "key-" + strconv.Itoa(i)}
		switch {
		case strings.HasPrefix(h, "$2"):
			key.bcrypt = []byte(h)
		default:
			sum, err := hex.DecodeString(h)
			if err != nil || len(sum) != sha256.Size {
				continue
			}
			key.sha256 = sum
		}
		am.keys = append(am.keys, key)
	}
	return am
}

// Enabled reports whether any key is configured
func (am *AuthMiddleware) Enabled() bool {
	return len(am.keys) > 0
}

// authenticate returns the ID of the key matching presented
func (am *AuthMiddleware) authenticate(presented string) (string, bool) {
	sum := sha256.Sum256([]byte(presented))
	for _, k := range am.keys {
		if k.sha256 != nil && subtle.ConstantTimeCompare(sum[:], k.sha256) == 1 {
			return k.id, true
		}
	}
	for _, k := range am.keys {
		if k.bcrypt != nil && bcrypt.CompareHashAndPassword(k.bcrypt, []byte(presented)) == nil {
			return k.id, true
		}
	}
	return "", false
}

// RequireAuth rejects requests without a valid Authorization: Bearer key
func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		scheme, presented, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || presented == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="replyaddr"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		id, ok := am.authenticate(strings.TrimSpace(presented))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="replyaddr", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(rctx.WithAPIKeyID(r.Context(), id)))
	})
}
