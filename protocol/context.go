package protocol

import "context"

// requestMetaKey is the context key for request metadata.
type requestMetaKey struct{}

// Well-known request metadata keys set by transports.
const (
	MetaSessionID  = "session_id"
	MetaTransport  = "transport"
	MetaRemoteAddr = "remote_addr"
	MetaRequestID  = "request_id"
)

// RequestMeta holds transport-level metadata associated with a request.
type RequestMeta map[string]string

// ContextWithRequestMeta returns a new context with the request metadata attached.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the request metadata from the context, or nil.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return meta
	}
	return nil
}

// GetRequestMeta returns a specific metadata value from the context.
func GetRequestMeta(ctx context.Context, key string) string {
	return RequestMetaFromContext(ctx)[key]
}

// SetRequestMeta sets a metadata value in the context without mutating
// the map already stored there.
func SetRequestMeta(ctx context.Context, key, value string) context.Context {
	meta := RequestMetaFromContext(ctx)
	next := make(RequestMeta, len(meta)+1)
	for k, v := range meta {
		next[k] = v
	}
	next[key] = value
	return ContextWithRequestMeta(ctx, next)
}

// SessionID returns the id of the session the request arrived on.
func SessionID(ctx context.Context) string {
	return GetRequestMeta(ctx, MetaSessionID)
}
