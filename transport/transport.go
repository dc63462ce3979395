// Package transport carries sessions over SSE, WebSocket and stdio.
package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/session"
)

// Transport names recorded in request metadata.
const (
	NameSSE       = "sse"
	NameWebSocket = "websocket"
	NameStdio     = "stdio"
)

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until ctx is canceled or an error occurs.
	Serve(ctx context.Context) error

	// Addr returns the transport's address description.
	Addr() string
}

// Sessions opens sessions for transports and registers them in a hub.
type Sessions struct {
	handler session.Handler
	hub     *session.Hub
	logger  *zap.Logger
}

// NewSessions binds a request handler to a hub.
func NewSessions(handler session.Handler, hub *session.Hub, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{handler: handler, hub: hub, logger: logger}
}

// Hub returns the hub sessions are registered in.
func (s *Sessions) Hub() *session.Hub {
	return s.hub
}

// Open creates an open session for one connection.
func (s *Sessions) Open(transport, remoteAddr string) (*session.Session, error) {
	sess := session.New(s.handler,
		session.WithLogger(s.logger),
		session.WithMeta(protocol.MetaTransport, transport),
		session.WithMeta(protocol.MetaRemoteAddr, remoteAddr),
	)
	if err := sess.Open(); err != nil {
		return nil, err
	}
	s.hub.Add(sess)
	return sess, nil
}

// pump writes outbound frames until the session closes. A failed write
// means the connection is gone, so the session is aborted.
func pump(sess *session.Session, write func([]byte) error) {
	for frame := range sess.Outbound() {
		if err := write(frame); err != nil {
			sess.Abort()
			return
		}
	}
}
