package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"duplexrpc/schema"
)

// LoggingInterceptor times each handler invocation and logs the message
// name, duration, and error (if any) as structured fields.
func LoggingInterceptor(logger *zap.Logger) Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req, rep schema.Instance) error {
			start := time.Now()
			err := next(ctx, req, rep)
			fields := []zap.Field{
				zap.String("message", req.TypeName()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
				logger.Warn("handler invocation failed", fields...)
				return err
			}
			logger.Debug("handler invocation", fields...)
			return nil
		}
	}
}
