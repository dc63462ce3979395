package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// Size units.
const (
	KB = 1024
	MB = 1024 * KB
)

// SizeLimit rejects requests whose params exceed maxBytes with an invalid
// request error. maxBytes <= 0 disables the check.
func SizeLimit(maxBytes int64, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		if maxBytes <= 0 {
			return next
		}
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if size := int64(len(req.Params)); size > maxBytes {
				logger.Warn("request size limit exceeded",
					zap.String("method", req.Method),
					zap.Int64("size", size),
					zap.Int64("max", maxBytes),
				)
				return nil, protocol.NewInvalidRequest(
					fmt.Sprintf("request size %d exceeds limit of %d bytes", size, maxBytes))
			}
			return next(ctx, req)
		}
	}
}
