package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tmaxmax/go-sse"
)

type sseClient struct {
	t      *testing.T
	srv    *httptest.Server
	events chan sse.Event
	cancel context.CancelFunc
}

func dialSSE(t *testing.T, srv *httptest.Server) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+DefaultSSEPath, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET /sse: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("GET /sse status = %d, want 200", resp.StatusCode)
	}

	c := &sseClient{t: t, srv: srv, events: make(chan sse.Event, 16), cancel: cancel}
	go func() {
		defer close(c.events)
		defer resp.Body.Close()
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				return
			}
			c.events <- ev
		}
	}()
	t.Cleanup(cancel)
	return c
}

func (c *sseClient) next() (sse.Event, bool) {
	c.t.Helper()
	select {
	case ev, ok := <-c.events:
		return ev, ok
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out waiting for event")
		return sse.Event{}, false
	}
}

func (c *sseClient) endpoint() string {
	c.t.Helper()
	ev, ok := c.next()
	if !ok || ev.Type != EventEndpoint {
		c.t.Fatalf("first event = %+v, want endpoint", ev)
	}
	return ev.Data
}

func (c *sseClient) post(endpoint, body string) int {
	c.t.Helper()
	resp, err := c.srv.Client().Post(c.srv.URL+endpoint, "application/json", strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("POST: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func newSSEServer(t *testing.T, opts ...HTTPOption) (*HTTP, *httptest.Server) {
	t.Helper()
	h := NewHTTP("127.0.0.1:0", newSessions(), append([]HTTPOption{WithSSE("", "")}, opts...)...)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		_ = h.shutdown.Shutdown(context.Background())
		srv.Close()
	})
	return h, srv
}

func TestSSERoundTrip(t *testing.T) {
	h, srv := newSSEServer(t)
	c := dialSSE(t, srv)

	endpoint := c.endpoint()
	if !strings.HasPrefix(endpoint, "/messages/?session_id=") {
		t.Fatalf("endpoint = %q", endpoint)
	}
	id := strings.TrimPrefix(endpoint, "/messages/?session_id=")
	if _, ok := h.sessions.Hub().Get(id); !ok {
		t.Fatalf("session %s not registered", id)
	}

	if code := c.post(endpoint, `{"jsonrpc":"2.0","id":1,"method":"ping"}`); code != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", code)
	}

	ev, ok := c.next()
	if !ok || ev.Type != EventMessage {
		t.Fatalf("event = %+v, want message", ev)
	}
	var f wireFrame
	if err := json.Unmarshal([]byte(ev.Data), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(f.ID) != "1" || f.Result.Method != "ping" {
		t.Errorf("frame = %+v", f)
	}
	if f.Result.Transport != NameSSE {
		t.Errorf("transport = %q, want %q", f.Result.Transport, NameSSE)
	}
}

func TestSSEMessageErrors(t *testing.T) {
	_, srv := newSSEServer(t, WithMaxBodySize(64))
	c := dialSSE(t, srv)
	endpoint := c.endpoint()

	tests := []struct {
		name     string
		endpoint string
		body     string
		want     int
	}{
		{"missing session", "/messages/", `{}`, http.StatusBadRequest},
		{"unknown session", "/messages/?session_id=nope", `{}`, http.StatusNotFound},
		{"too large", endpoint, `{"jsonrpc":"2.0","id":1,"method":"` + strings.Repeat("x", 100) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.post(tt.endpoint, tt.body); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}

	resp, err := srv.Client().Get(srv.URL + "/messages/?session_id=x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET messages status = %d, want 405", resp.StatusCode)
	}
}

func TestSSEMalformedFrameClosesStream(t *testing.T) {
	h, srv := newSSEServer(t)
	c := dialSSE(t, srv)
	endpoint := c.endpoint()

	if code := c.post(endpoint, `{not json`); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}

	ev, ok := c.next()
	if !ok {
		t.Fatal("stream ended before the parse error")
	}
	var f wireFrame
	if err := json.Unmarshal([]byte(ev.Data), &f); err != nil {
		t.Fatal(err)
	}
	if f.Error == nil || f.Error.Code != -32700 || string(f.ID) != "null" {
		t.Errorf("frame = %+v, want parse error with null id", f)
	}

	if _, ok := c.next(); ok {
		t.Error("expected stream to end")
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.sessions.Hub().Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.sessions.Hub().Len(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestSSEDisconnectRemovesSession(t *testing.T) {
	h, srv := newSSEServer(t)
	c := dialSSE(t, srv)
	c.endpoint()

	if n := h.sessions.Hub().Len(); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
	c.cancel()

	deadline := time.Now().Add(2 * time.Second)
	for h.sessions.Hub().Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.sessions.Hub().Len(); n != 0 {
		t.Errorf("sessions = %d, want 0 after disconnect", n)
	}
}

func TestSSEDraining(t *testing.T) {
	h, srv := newSSEServer(t)
	c := dialSSE(t, srv)
	endpoint := c.endpoint()

	if err := h.shutdown.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, ok := c.next(); ok {
		t.Error("expected stream to end on shutdown")
	}

	if code := c.post(endpoint, `{"jsonrpc":"2.0","id":1,"method":"ping"}`); code != http.StatusServiceUnavailable {
		t.Errorf("POST while draining = %d, want 503", code)
	}
	resp, err := srv.Client().Get(srv.URL + DefaultSSEPath)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /sse while draining = %d, want 503", resp.StatusCode)
	}
}

func TestHealthAndExtraHandlers(t *testing.T) {
	h := NewHTTP(":0", newSessions(),
		WithHandler("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		})),
		WithDefaultCORS(),
	)
	handler := h.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 0 {
		t.Errorf("health = %+v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "metrics" {
		t.Errorf("metrics body = %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodOptions, "/sse", nil)
	req.Header.Set("Origin", "http://example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
}

func TestHTTPServeStopsOnCancel(t *testing.T) {
	h := NewHTTP("127.0.0.1:0", newSessions(), WithSSE("", ""))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.ListenAddr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + h.ListenAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
