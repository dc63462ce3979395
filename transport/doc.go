// Package transport carries sessions over SSE, WebSocket and stdio.
//
// Every connection becomes one session.Session registered in a shared
// session.Hub. Transports only move frames: inbound bytes go to
// Session.Deliver and everything on Session.Outbound is written back in
// the order it was produced.
//
// # SSE Transport
//
// GET /sse opens an event stream. The first event is "endpoint", whose
// data is the URL the client POSTs frames to:
//
//	event: endpoint
//	data: /messages/?session_id=0c6f...
//
// Responses and notifications follow as "message" events. A POST answers
// 202 once the frame is admitted; the response arrives on the stream.
//
//	h := transport.NewHTTP(":8080", sessions,
//	    transport.WithSSE("", ""),
//	    transport.WithWebSocket(""),
//	    transport.WithHandler("/metrics", promhttp.Handler()),
//	)
//	err := h.Serve(ctx)
//
// # WebSocket Transport
//
// Each text message carries one frame in either direction.
//
// # Stdio Transport
//
// One session over newline-delimited JSON on stdin/stdout. Serve returns
// when stdin reaches EOF and in-flight requests have been answered.
//
// # Shutdown
//
// Canceling the Serve context refuses new connections, closes every
// session and waits up to ShutdownConfig.Timeout for in-flight requests.
package transport
