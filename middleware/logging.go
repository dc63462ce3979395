package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// Logging writes one line per request. Successful requests log at info,
// error responses at warn and handler failures at error. Notifications
// log at debug.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if id := CorrelationIDFromContext(ctx); id != "" {
				fields = append(fields, zap.String("correlation_id", id))
			}
			if sid := protocol.SessionID(ctx); sid != "" {
				fields = append(fields, zap.String("session_id", sid))
			}
			if !req.IsNotification() {
				fields = append(fields, zap.ByteString("request_id", req.ID))
			}

			switch {
			case err != nil:
				fields = append(fields, zap.Int("code", protocol.FromError(err).Code), zap.Error(err))
				logger.Error("request failed", fields...)
			case resp != nil && resp.Error != nil:
				fields = append(fields, zap.Int("code", resp.Error.Code), zap.String("error", resp.Error.Message))
				logger.Warn("request returned error", fields...)
			case req.IsNotification():
				logger.Debug("notification handled", fields...)
			default:
				logger.Info("request completed", fields...)
			}
			return resp, err
		}
	}
}
