package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tejas.dev/portfolio-api/internal/logger"
)

const maxChatBodyBytes = 64 << 10

// AdminAuth guards operator endpoints with a static bearer token. An empty
// token leaves the routes open, which is how local development runs.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithUnauthorized(w, "Authorization header is required")
				return
			}

			provided, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				respondWithUnauthorized(w, "Invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit counts requests per client IP and route in fixed Redis windows.
// A nil client disables limiting; Redis errors let the request through.
// EXPIRE NX needs Redis 7 or newer.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil || limit <= 0 {
			return next
		}
		windowSeconds := int(window / time.Second)
		if windowSeconds <= 0 {
			windowSeconds = 60
			window = time.Minute
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + clientIP(r) + ":" + r.URL.Path

			// INCR and EXPIRE NX run in one MULTI; a counter never lives without a TTL.
			ctx := r.Context()
			pipe := rdb.TxPipeline()
			incr := pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			if _, err := pipe.Exec(ctx); err != nil {
				// Fail open - don't block requests if Redis is down
				logger.Warn("Rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			count := incr.Val()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if count > int64(limit) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))
				w.Header().Set("Retry-After", strconv.Itoa(windowSeconds))
				respondWithError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded",
					"Too many requests. Please try again later.",
					map[string]int{
						"retry_after": windowSeconds,
						"limit":       limit,
					})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have run first.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
