package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"duplexrpc/errs"
	"duplexrpc/schema"
)

type pingMsg struct{ Nonce int }
type pongMsg struct{ Nonce int }

func newInstances(t *testing.T) (schema.Instance, schema.Instance) {
	t.Helper()
	facility := schema.NewRegistry(schema.JSONCodec{})
	reqDesc := schema.Register[pingMsg](facility, "middleware_test.proto", "middleware_test.Ping")
	repDesc := schema.Register[pongMsg](facility, "middleware_test.proto", "middleware_test.Pong")
	return reqDesc.New(), repDesc.New()
}

func echoHandler(ctx context.Context, req, rep schema.Instance) error {
	rep.Value().(*pongMsg).Nonce = req.Value().(*pingMsg).Nonce
	return nil
}

func slowHandler(ctx context.Context, req, rep schema.Instance) error {
	select {
	case <-time.After(200 * time.Millisecond):
		return echoHandler(ctx, req, rep)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestLoggingInterceptorPassesThrough(t *testing.T) {
	req, rep := newInstances(t)
	req.Value().(*pingMsg).Nonce = 7

	h := LoggingInterceptor(zap.NewNop())(echoHandler)
	if err := h(context.Background(), req, rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Value().(*pongMsg).Nonce != 7 {
		t.Fatalf("expect nonce 7, got %d", rep.Value().(*pongMsg).Nonce)
	}
}

func TestTimeoutInterceptorPass(t *testing.T) {
	req, rep := newInstances(t)
	req.Value().(*pingMsg).Nonce = 1

	h := TimeoutInterceptor(500 * time.Millisecond)(echoHandler)
	if err := h(context.Background(), req, rep); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutInterceptorExceeded(t *testing.T) {
	req, rep := newInstances(t)

	h := TimeoutInterceptor(20 * time.Millisecond)(slowHandler)
	err := h(context.Background(), req, rep)
	if !errors.Is(err, ErrHandlerTimeout) {
		t.Fatalf("expect ErrHandlerTimeout, got %v", err)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	req, rep := newInstances(t)

	h := RateLimitInterceptor(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		if err := h(context.Background(), req, rep); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}
	if err := h(context.Background(), req, rep); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
}

func TestChainPassesThroughToHandler(t *testing.T) {
	req, rep := newInstances(t)
	req.Value().(*pingMsg).Nonce = 3

	chained := Chain(LoggingInterceptor(zap.NewNop()), TimeoutInterceptor(500*time.Millisecond))
	h := chained(echoHandler)

	if err := h(context.Background(), req, rep); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if rep.Value().(*pongMsg).Nonce != 3 {
		t.Fatalf("expect nonce 3, got %d", rep.Value().(*pongMsg).Nonce)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	attempt := func(completion func(error)) {
		attempts++
		completion(nil)
	}

	done := make(chan error, 1)
	Retry(3, time.Millisecond, attempt)(func(err error) { done <- err })

	if err := <-done; err != nil {
		t.Fatalf("expect nil error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expect 1 attempt, got %d", attempts)
	}
}

func TestRetryGivesUpOnProtocolError(t *testing.T) {
	attempts := 0
	attempt := func(completion func(error)) {
		attempts++
		completion(errs.ErrUnknownProtocolDescriptor)
	}

	done := make(chan error, 1)
	Retry(3, time.Millisecond, attempt)(func(err error) { done <- err })

	if err := <-done; !errors.Is(err, errs.ErrUnknownProtocolDescriptor) {
		t.Fatalf("expect ErrUnknownProtocolDescriptor, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expect exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRetryRetriesTransportErrors(t *testing.T) {
	attempts := 0
	attempt := func(completion func(error)) {
		attempts++
		if attempts < 3 {
			completion(errTransientForTest)
			return
		}
		completion(nil)
	}

	done := make(chan error, 1)
	Retry(5, time.Millisecond, attempt)(func(err error) { done <- err })

	if err := <-done; err != nil {
		t.Fatalf("expect eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts)
	}
}

var errTransientForTest = errors.New("connection reset")
