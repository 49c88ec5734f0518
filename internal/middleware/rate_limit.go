package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultRateLimit returns the coarse per-client HTTP throttle (120 requests per minute).
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
	}
}

// RateLimitByClientIP creates a middleware that rate limits requests by the
// resolved client IP. This sits in front of the per-IP submission limit and
// only guards against request floods.
func RateLimitByClientIP(config RateLimitConfig, classifier pkghttp.LocalClassifier) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config = DefaultRateLimit()
	}
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, classifier), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
