package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWebSocketPath is where WebSocket clients connect.
const DefaultWebSocketPath = "/ws"

type webSocket struct {
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// WebSocketOption configures the WebSocket endpoint.
type WebSocketOption func(*webSocket)

// WithWebSocketReadTimeout sets the idle read timeout for WebSocket
// connections. Zero disables it.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(ws *webSocket) {
		ws.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for WebSocket messages.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(ws *webSocket) {
		ws.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *webSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// WithWebSocket enables the WebSocket transport at path. Each text
// message is one frame.
func WithWebSocket(path string, opts ...WebSocketOption) HTTPOption {
	return func(h *HTTP) {
		if path == "" {
			path = DefaultWebSocketPath
		}
		ws := &webSocket{
			upgrader: websocket.Upgrader{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				CheckOrigin:     func(r *http.Request) bool { return true },
			},
			writeTimeout: 10 * time.Second,
		}
		for _, opt := range opts {
			opt(ws)
		}
		h.wsPath = path
		h.ws = ws
	}
}

// wsClient represents a single WebSocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (h *HTTP) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.IsDraining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn}
	conn.SetReadLimit(h.maxBodySize)

	sess, err := h.sessions.Open(NameWebSocket, r.RemoteAddr)
	if err != nil {
		h.logger.Error("failed to open session", zap.Error(err))
		client.close()
		return
	}
	log := h.logger.With(zap.String("session_id", sess.ID()))
	log.Debug("websocket opened", zap.String("remote_addr", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pump(sess, func(frame []byte) error {
			return client.write(frame, h.ws.writeTimeout)
		})
		client.close()
	}()

	for {
		if h.ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.ws.readTimeout))
		}
		mt, message, err := conn.ReadMessage()
		if err != nil {
			// Client disconnected or the writer closed the connection.
			sess.Abort()
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := sess.Deliver(message); err != nil {
			log.Debug("frame rejected", zap.Error(err))
		}
	}

	<-writerDone
	log.Debug("websocket closed")
}

func (c *wsClient) write(frame []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}
