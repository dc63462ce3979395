// Package middleware wraps the JSON-RPC request handler shared by every
// session.
//
//	handler := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.CorrelationID(),
//	    middleware.OTel(),
//	    middleware.Logging(logger),
//	    middleware.RateLimit(cfg.Limits.Rate, cfg.Limits.Burst),
//	    middleware.SizeLimit(cfg.Limits.MaxRequestBytes, logger),
//	)(route)
//
// Available middleware:
//
//   - Recover: converts panics to internal errors
//   - CorrelationID: tags each request with a server-side uuid
//   - Logging: one zap line per request
//   - RateLimit: fortify token buckets, per session by default (-32003)
//   - SizeLimit: rejects oversized params
//   - OTel: spans and request metrics
package middleware
