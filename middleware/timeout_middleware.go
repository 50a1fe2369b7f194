package middleware

import (
	"context"
	"errors"
	"time"

	"duplexrpc/schema"
)

// ErrHandlerTimeout is returned when a handler invocation does not finish
// before TimeoutInterceptor's deadline. The dispatch engine itself imposes
// no timeout; this interceptor is the outer mechanism for bounding one.
var ErrHandlerTimeout = errors.New("handler invocation timed out")

// TimeoutInterceptor races next against a context deadline. The handler
// goroutine is not canceled on timeout — it may still complete and mutate
// rep after TimeoutInterceptor has already returned ErrHandlerTimeout to
// the dispatcher, which is the caller's problem to avoid by writing
// context-aware handlers.
func TimeoutInterceptor(timeout time.Duration) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req, rep schema.Instance) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- next(ctx, req, rep) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ErrHandlerTimeout
			}
		}
	}
}
