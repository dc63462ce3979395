package middleware

import (
	"context"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// HandlerFunc serves one decoded request. Notifications return a nil
// response.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middleware so Chain(m1, m2)(h) runs m1, then m2, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] == nil {
				continue
			}
			final = middlewares[i](final)
		}
		return final
	}
}
