package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/cache"
)

const (
	defaultRequestsPerMinute     = 120
	defaultAuthFailuresPerMinute = 10
	rateWindow                   = time.Minute
)

// RateLimit provides fixed-window rate limiting via Redis: one request
// counter per credential and one 401 counter per client address.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	failuresPerMin int
	cookieName     string
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware. cookieName is the session
// cookie used to tell browser callers apart.
func NewRateLimit(c cache.Cache, requestsPerMin int, cookieName string) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		cache:          c,
		requestsPerMin: requestsPerMin,
		failuresPerMin: defaultAuthFailuresPerMinute,
		cookieName:     cookieName,
		now:            time.Now,
	}
}

// WithFailureLimit sets how many 401 responses one address may receive per
// window before all of its requests are refused.
func (rl *RateLimit) WithFailureLimit(n int) *RateLimit {
	if n > 0 {
		rl.failuresPerMin = n
	}
	return rl
}

// Limit counts the request against its caller's window. Redis failures let
// the request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		window := now.Unix() / int64(rateWindow.Seconds())
		resetAt := (window + 1) * int64(rateWindow.Seconds())
		addr := clientAddr(r)
		failKey := cache.AuthFailureKey(addr, window)

		if rl.failuresExceeded(r.Context(), failKey) {
			w.Header().Set("Retry-After", strconv.FormatInt(resetAt-now.Unix(), 10))
			response.Error(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(rl.subject(r, addr), window), rateWindow)
		if err != nil {
			slog.Warn("rate limit unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", strconv.FormatInt(resetAt-now.Unix(), 10))
			response.Error(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusUnauthorized {
			if _, err := rl.cache.IncrWithExpiry(r.Context(), failKey, rateWindow); err != nil {
				slog.Warn("auth failure counter unavailable", "error", err)
			}
		}
	})
}

func (rl *RateLimit) failuresExceeded(ctx context.Context, key string) bool {
	raw, ok, err := rl.cache.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return false
	}
	return n >= rl.failuresPerMin
}

// subject identifies the caller without authenticating it: access keys by
// a digest of the whole token, sessions by cookie digest, everyone else by
// address. A forged token never shares a counter with a real key.
func (rl *RateLimit) subject(r *http.Request, addr string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if token := strings.TrimSpace(h[len("Bearer "):]); accesskey.IsAccessKey(token) {
			return "key:" + accesskey.Hash(token)[:32]
		}
	}
	if c, err := r.Cookie(rl.cookieName); err == nil && c.Value != "" {
		sum := sha256.Sum256([]byte(c.Value))
		return "session:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + addr
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
