package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// KeyFunc extracts the rate limit bucket for a request.
type KeyFunc func(ctx context.Context, req *protocol.Request) string

// BySession buckets requests by the session that carried them.
func BySession(ctx context.Context, _ *protocol.Request) string {
	if id := protocol.SessionID(ctx); id != "" {
		return id
	}
	return "global"
}

// ByMethod buckets requests by JSON-RPC method.
func ByMethod(_ context.Context, req *protocol.Request) string {
	return req.Method
}

// RateLimitOption configures the rate limiter.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	keyFunc KeyFunc
	logger  *zap.Logger
	exempt  map[string]bool
}

// WithRateLimitKeyFunc sets how requests are bucketed. Default: BySession.
func WithRateLimitKeyFunc(fn KeyFunc) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.keyFunc = fn
	}
}

// WithRateLimitLogger sets the logger for rejected requests.
func WithRateLimitLogger(l *zap.Logger) RateLimitOption {
	return func(c *rateLimitConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimitExempt lists methods that bypass the limiter.
func WithRateLimitExempt(methods ...string) RateLimitOption {
	return func(c *rateLimitConfig) {
		for _, m := range methods {
			c.exempt[m] = true
		}
	}
}

// RateLimit returns token bucket middleware allowing rate requests per
// second per bucket with the given burst. Notifications are never
// limited; rate <= 0 disables the limiter.
func RateLimit(rate, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc: BySession,
		logger:  zap.NewNop(),
		exempt:  map[string]bool{protocol.MethodInitialize: true, protocol.MethodPing: true},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if burst < rate {
		burst = rate
	}

	return func(next HandlerFunc) HandlerFunc {
		if rate <= 0 {
			return next
		}
		limiter := ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			Interval: time.Second,
		})
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if req.IsNotification() || cfg.exempt[req.Method] {
				return next(ctx, req)
			}
			key := cfg.keyFunc(ctx, req)
			if !limiter.Allow(ctx, key) {
				cfg.logger.Warn("rate limit exceeded",
					zap.String("method", req.Method),
					zap.String("key", key),
				)
				return nil, protocol.NewRateLimited("rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
