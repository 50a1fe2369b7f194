package middleware

import (
	"errors"
	"time"

	"duplexrpc/errs"
)

// Retryable reports whether err is worth retrying: a transport-level
// failure, not one of the protocol-domain error kinds. A protocol error
// (unknown method, malformed payload, bad session) will recur identically
// on retry and is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	domainKinds := []error{
		errs.ErrParseEnvelopeFailed,
		errs.ErrParsePayloadFailed,
		errs.ErrUnknownProtocolDescriptor,
		errs.ErrSessionOutOfRange,
		errs.ErrInvalidSession,
	}
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return false
		}
	}
	return true
}

// Retry wraps attempt — one call to rpcservice.AsyncCall, wired to invoke
// whatever completion it is given exactly once — with up to maxRetries
// additional attempts on exponential backoff, whenever the completion
// fires with a Retryable error. It returns a function that takes the
// caller's final completion and starts the first attempt; final fires
// exactly once, with the last observed result.
func Retry(maxRetries int, baseDelay time.Duration, attempt func(completion func(error))) func(final func(error)) {
	return func(final func(error)) {
		var try func(n int)
		try = func(n int) {
			attempt(func(err error) {
				if err == nil || n >= maxRetries || !Retryable(err) {
					final(err)
					return
				}
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(n)))
				try(n + 1)
			})
		}
		try(0)
	}
}
