// Package progress carries notifications/progress reporting through a
// request context.
package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// Token identifies the request a progress update belongs to. MCP allows
// strings and integers, so the raw JSON value is kept.
type Token json.RawMessage

// Notifier can send JSON-RPC notifications to the client.
type Notifier interface {
	SendNotification(method string, params any) error
}

// Reporter sends progress updates for one request.
type Reporter interface {
	// Report sends an update. Progress values are forced to increase.
	Report(done, total float64, message string) error
	Token() Token
}

type reporter struct {
	token    Token
	notifier Notifier

	mu   sync.Mutex
	last float64
	sent bool
}

// NewReporter creates a reporter. An empty token produces a reporter that
// never sends anything.
func NewReporter(token Token, notifier Notifier) Reporter {
	if len(token) == 0 || notifier == nil {
		return nop{}
	}
	return &reporter{token: token, notifier: notifier}
}

func (r *reporter) Token() Token { return r.token }

func (r *reporter) Report(done, total float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent && done <= r.last {
		return nil
	}
	r.last, r.sent = done, true

	params := map[string]any{
		"progressToken": json.RawMessage(r.token),
		"progress":      done,
	}
	if total > 0 {
		params["total"] = total
	}
	if message != "" {
		params["message"] = message
	}
	return r.notifier.SendNotification(protocol.MethodProgress, params)
}

type nop struct{}

func (nop) Report(float64, float64, string) error { return nil }
func (nop) Token() Token                          { return nil }

type contextKey struct{}

// WithReporter attaches a reporter to ctx.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the reporter attached to ctx, or a no-op reporter.
func FromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(contextKey{}).(Reporter); ok {
		return r
	}
	return nop{}
}

// ExtractToken reads params._meta.progressToken.
func ExtractToken(params json.RawMessage) Token {
	if len(params) == 0 {
		return nil
	}
	var p struct {
		Meta struct {
			ProgressToken json.RawMessage `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil
	}
	if string(p.Meta.ProgressToken) == "null" {
		return nil
	}
	return Token(p.Meta.ProgressToken)
}
