package middleware

import "go.uber.org/zap"

// DefaultStack returns panic recovery, correlation ids and request logging,
// outermost first.
func DefaultStack(logger *zap.Logger) []Middleware {
	return []Middleware{
		Recover(logger),
		CorrelationID(),
		Logging(logger),
	}
}
