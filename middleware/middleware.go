// Package middleware wraps a callee-side handler invocation with
// before/after logic: logging, a timeout, and rate limiting all live here as
// Interceptors that compose around the plain handler call. Retrying an
// outbound call is a different shape (it wraps the call, not a callee
// handler) and lives in retry_middleware.go as a standalone helper rather
// than an Interceptor.
package middleware

import (
	"context"

	"duplexrpc/schema"
)

// HandlerFunc is the callee-side handler invocation an Interceptor wraps:
// the same shape as handler.TypedHandler.Invoke, plus a context so
// interceptors can carry deadlines and values through the call.
type HandlerFunc func(ctx context.Context, req, rep schema.Instance) error

// Interceptor wraps a HandlerFunc with before/after logic around the call.
type Interceptor func(next HandlerFunc) HandlerFunc

// Chain composes interceptors into one, in the onion order their names
// suggest: Chain(a, b, c)(handler) runs a's before-logic, then b's, then
// c's, then handler, then unwinds c, b, a.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}
