// Package testutil drives an MCP request handler in memory.
//
// Example usage:
//
//	srv, _ := hjmcpsse.New(cfg)
//	tc := testutil.NewTestClient(t, srv.Handle)
//
//	text, err := tc.CallTool("calculator", map[string]any{"expression": "2 + 3"})
//	require.NoError(t, err)
//	assert.Equal(t, "5", text)
//
// Responses are round-tripped through JSON, so results look exactly like
// what a remote client decodes.
package testutil

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/session"
)

// TestClient calls a handler directly, one request at a time.
type TestClient struct {
	t       testing.TB
	handler session.Handler
	reqID   int64
	mu      sync.Mutex
}

// NewTestClient creates a client and performs the initialize handshake.
func NewTestClient(t testing.TB, handler session.Handler) *TestClient {
	t.Helper()

	tc := NewTestClientWithHandler(t, handler)
	if _, err := tc.Initialize(); err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}
	return tc
}

// NewTestClientWithHandler creates a client without initializing. It is
// useful for testing middleware.
func NewTestClientWithHandler(t testing.TB, handler session.Handler) *TestClient {
	t.Helper()
	return &TestClient{t: t, handler: handler}
}

func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(strconv.FormatInt(tc.reqID, 10))
}

// Response is a decoded JSON-RPC response.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *protocol.Error `json:"error"`
}

// Decode unmarshals the result into v.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	return json.Unmarshal(r.Result, v)
}

// SendRequest sends one request and returns the decoded response. Handler
// errors are converted the way a session converts them.
func (tc *TestClient) SendRequest(method string, params any) (*Response, error) {
	tc.t.Helper()

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "marshal params")
		}
		raw = data
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      tc.nextID(),
		Method:  method,
		Params:  raw,
	}
	resp, err := tc.handler(context.Background(), req)
	if err != nil {
		resp = protocol.NewErrorResponse(req.ID, protocol.FromError(err))
	}
	if resp == nil {
		return nil, errors.Newf("no response to %s", method)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "marshal response")
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	return &out, nil
}

func (tc *TestClient) call(method string, params, v any) error {
	tc.t.Helper()

	resp, err := tc.SendRequest(method, params)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Initialize sends an initialize request.
func (tc *TestClient) Initialize() (map[string]any, error) {
	var result map[string]any
	err := tc.call(protocol.MethodInitialize, map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"clientInfo":      map[string]any{"name": "test-client", "version": "1.0.0"},
	}, &result)
	return result, err
}

// Ping sends a ping request.
func (tc *TestClient) Ping() error {
	var result map[string]any
	return tc.call(protocol.MethodPing, nil, &result)
}

// ListTools lists all available tools.
func (tc *TestClient) ListTools() ([]map[string]any, error) {
	var result struct {
		Tools []map[string]any `json:"tools"`
	}
	err := tc.call(protocol.MethodToolsList, nil, &result)
	return result.Tools, err
}

// ToolResult is the decoded result of tools/call.
type ToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent map[string]any `json:"structuredContent"`
	IsError           bool           `json:"isError"`
}

// Text returns the first text content item.
func (r *ToolResult) Text() (string, error) {
	if len(r.Content) == 0 {
		return "", errors.New("empty content array")
	}
	return r.Content[0].Text, nil
}

// CallToolResult calls a tool and returns the full result.
func (tc *TestClient) CallToolResult(name string, args any) (*ToolResult, error) {
	var result ToolResult
	err := tc.call(protocol.MethodToolsCall, map[string]any{"name": name, "arguments": args}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CallTool calls a tool and returns its text.
func (tc *TestClient) CallTool(name string, args any) (string, error) {
	result, err := tc.CallToolResult(name, args)
	if err != nil {
		return "", err
	}
	return result.Text()
}

// ListResources lists the concrete resources.
func (tc *TestClient) ListResources() ([]map[string]any, error) {
	var result struct {
		Resources []map[string]any `json:"resources"`
	}
	err := tc.call(protocol.MethodResourcesList, nil, &result)
	return result.Resources, err
}

// ListResourceTemplates lists the resource templates.
func (tc *TestClient) ListResourceTemplates() ([]map[string]any, error) {
	var result struct {
		Templates []map[string]any `json:"resourceTemplates"`
	}
	err := tc.call(protocol.MethodResourcesTemplatesList, nil, &result)
	return result.Templates, err
}

// ResourceContents is one item of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Blob     string `json:"blob"`
}

// ReadResource reads a resource by URI.
func (tc *TestClient) ReadResource(uri string) (*ResourceContents, error) {
	var result struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := tc.call(protocol.MethodResourcesRead, map[string]any{"uri": uri}, &result); err != nil {
		return nil, err
	}
	if len(result.Contents) == 0 {
		return nil, errors.New("empty contents array")
	}
	return &result.Contents[0], nil
}

// ListPrompts lists all available prompts.
func (tc *TestClient) ListPrompts() ([]map[string]any, error) {
	var result struct {
		Prompts []map[string]any `json:"prompts"`
	}
	err := tc.call(protocol.MethodPromptsList, nil, &result)
	return result.Prompts, err
}

// GetPrompt gets a prompt by name with the given arguments.
func (tc *TestClient) GetPrompt(name string, args map[string]any) (map[string]any, error) {
	var result map[string]any
	err := tc.call(protocol.MethodPromptsGet, map[string]any{"name": name, "arguments": args}, &result)
	return result, err
}

// Completion is the decoded result of completion/complete.
type Completion struct {
	Values  []string `json:"values"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// Complete asks for argument completions. refType is "ref/prompt" or
// "ref/resource"; target is the prompt name or resource URI.
func (tc *TestClient) Complete(refType, target, argument, value string) (*Completion, error) {
	ref := map[string]any{"type": refType}
	if refType == "ref/resource" {
		ref["uri"] = target
	} else {
		ref["name"] = target
	}
	var result struct {
		Completion Completion `json:"completion"`
	}
	err := tc.call(protocol.MethodCompletionComplete, map[string]any{
		"ref":      ref,
		"argument": map[string]any{"name": argument, "value": value},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result.Completion, nil
}

// AssertToolExists asserts that a tool with the given name exists.
func (tc *TestClient) AssertToolExists(name string) {
	tc.t.Helper()
	tools, err := tc.ListTools()
	if err != nil {
		tc.t.Fatalf("ListTools failed: %v", err)
	}
	if !hasName(tools, "name", name) {
		tc.t.Errorf("tool %q not found", name)
	}
}

// AssertResourceExists asserts that a resource with the given URI exists.
func (tc *TestClient) AssertResourceExists(uri string) {
	tc.t.Helper()
	resources, err := tc.ListResources()
	if err != nil {
		tc.t.Fatalf("ListResources failed: %v", err)
	}
	if !hasName(resources, "uri", uri) {
		tc.t.Errorf("resource %q not found", uri)
	}
}

// AssertPromptExists asserts that a prompt with the given name exists.
func (tc *TestClient) AssertPromptExists(name string) {
	tc.t.Helper()
	prompts, err := tc.ListPrompts()
	if err != nil {
		tc.t.Fatalf("ListPrompts failed: %v", err)
	}
	if !hasName(prompts, "name", name) {
		tc.t.Errorf("prompt %q not found", name)
	}
}

func hasName(items []map[string]any, key, want string) bool {
	for _, item := range items {
		if item[key] == want {
			return true
		}
	}
	return false
}

// Frame is one decoded outbound message of a session.
type Frame struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *protocol.Error `json:"error"`
}

// IsNotification reports whether the frame is a server notification.
func (f Frame) IsNotification() bool {
	return f.Method != ""
}

// SessionClient drives a live session, so requests run concurrently and
// responses arrive in completion order.
type SessionClient struct {
	t       testing.TB
	session *session.Session
	timeout time.Duration
}

// NewSessionClient opens a session over handler. The session is aborted
// when the test ends.
func NewSessionClient(t testing.TB, handler session.Handler, opts ...session.Option) *SessionClient {
	t.Helper()

	s := session.New(handler, opts...)
	if err := s.Open(); err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(s.Abort)
	return &SessionClient{t: t, session: s, timeout: 2 * time.Second}
}

// Session returns the underlying session.
func (c *SessionClient) Session() *session.Session {
	return c.session
}

// Send delivers one request frame with the given id.
func (c *SessionClient) Send(id any, method string, params any) error {
	msg := map[string]any{"jsonrpc": protocol.JSONRPCVersion, "method": method}
	if id != nil {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal frame")
	}
	return c.session.Deliver(data)
}

// SendRaw delivers an unparsed frame.
func (c *SessionClient) SendRaw(frame string) error {
	return c.session.Deliver([]byte(frame))
}

// Next waits for the next outbound frame.
func (c *SessionClient) Next() Frame {
	c.t.Helper()

	select {
	case data, ok := <-c.session.Outbound():
		if !ok {
			c.t.Fatal("session outbound closed")
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.t.Fatalf("decode frame %s: %v", data, err)
		}
		return f
	case <-time.After(c.timeout):
		c.t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

// Responses collects n responses keyed by id, skipping notifications.
func (c *SessionClient) Responses(n int) map[string]Frame {
	c.t.Helper()

	out := make(map[string]Frame, n)
	for len(out) < n {
		f := c.Next()
		if f.IsNotification() {
			continue
		}
		key := string(f.ID)
		if _, dup := out[key]; dup {
			c.t.Fatalf("duplicate response for id %s", key)
		}
		out[key] = f
	}
	return out
}

// Close closes the session gracefully.
func (c *SessionClient) Close(ctx context.Context) error {
	return errors.Wrap(c.session.Close(ctx), "close session")
}
