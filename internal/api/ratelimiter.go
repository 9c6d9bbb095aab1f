package api

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow() bool
}

// tokenBucket limits validation traffic across all clients.
type tokenBucket struct {
	limiter    *rate.Limiter
	retryAfter int
}

// newTokenBucketLimiter returns nil, which disables limiting, unless both
// rps and burst are positive.
func newTokenBucketLimiter(rps float64, burst int) rateLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &tokenBucket{
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retryAfter: int(math.Max(1, math.Ceil(1/rps))),
	}
}

func (b *tokenBucket) Allow() bool {
	return b.limiter.Allow()
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	retryAfter := 1
	if b, ok := limiter.(*tokenBucket); ok {
		retryAfter = b.retryAfter
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "Too many requests",
			"validation rate limit exceeded", "retry after "+strconv.Itoa(retryAfter)+"s or raise --rate-limit-rps")
	})
}
