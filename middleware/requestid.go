package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/hjlabs/hjmcpsse/protocol"
)

type correlationIDKey struct{}

// CorrelationID returns middleware that tags each request context with a
// server-generated id, independent of the client-chosen JSON-RPC id. An
// id already on the context is kept.
func CorrelationID() Middleware {
	return CorrelationIDWithGenerator(uuid.NewString)
}

// CorrelationIDWithGenerator is CorrelationID with a custom generator.
func CorrelationIDWithGenerator(generator func() string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if CorrelationIDFromContext(ctx) == "" {
				ctx = ContextWithCorrelationID(ctx, generator())
			}
			return next(ctx, req)
		}
	}
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// ContextWithCorrelationID returns ctx carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}
