package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"duplexrpc/schema"
)

// ErrRateLimited is returned when RateLimitInterceptor's token bucket is
// exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitInterceptor guards inbound dispatch with a token bucket:
// r tokens/second, up to burst in one instant.
func RateLimitInterceptor(r float64, burst int) Interceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req, rep schema.Instance) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, req, rep)
		}
	}
}
