package transport

import (
	"context"
	"encoding/json"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/session"
)

// echoHandler answers every request with its method and the transport
// the request arrived on.
func echoHandler(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.IsNotification() {
		return nil, nil
	}
	return protocol.NewResponse(req.ID, map[string]string{
		"method":    req.Method,
		"transport": protocol.GetRequestMeta(ctx, protocol.MetaTransport),
	}), nil
}

func newSessions() *Sessions {
	return NewSessions(echoHandler, session.NewHub(nil, nil), nil)
}

type wireFrame struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Result struct {
		Method    string `json:"method"`
		Transport string `json:"transport"`
	} `json:"result"`
	Error *protocol.Error `json:"error"`
}
