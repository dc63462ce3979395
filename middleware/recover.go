package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// PanicHandler is called when a panic is recovered.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)

// Recover returns middleware that converts panics to internal errors and
// logs them with a stack trace.
func Recover(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return RecoverWithHandler(func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error) {
		logger.Error("panic recovered",
			zap.String("method", req.Method),
			zap.Any("panic", panicVal),
			zap.Stack("stack"),
		)
		return defaultPanicHandler(ctx, req, panicVal)
	})
}

// RecoverWithHandler returns middleware that catches panics and calls handler.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = handler(ctx, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func defaultPanicHandler(_ context.Context, _ *protocol.Request, panicVal any) (*protocol.Response, error) {
	return nil, protocol.NewInternalError(fmt.Sprintf("panic: %v", panicVal))
}
