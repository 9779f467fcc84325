package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/httprate"
)

const rateLimitMessage = "Too many requests. Please try again later."

// Limiter admits or denies one request per call for a key.
type Limiter interface {
	Check(key string, now time.Time) error
	RetryAfter(key string, now time.Time) time.Duration
}

// RateLimit applies limiter to every request, keyed by keyFunc. Denied
// requests get 429 with a Retry-After header.
func RateLimit(limiter Limiter, keyFunc httprate.KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := keyFunc(r)
			if err != nil {
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			now := time.Now()
			if err := limiter.Check(key, now); err != nil {
				retry := limiter.RetryAfter(key, now)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				logger.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("path", r.URL.Path))
				pkghttp.WriteTooManyRequests(w, rateLimitMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP is a sliding-window per-IP limit for a route group, used on
// top of the global limiter for admin endpoints.
func RateLimitByIP(requestsPerMinute int, keyFunc httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, rateLimitMessage)
		}),
	)
}
