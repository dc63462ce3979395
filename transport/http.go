package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultMaxBodySize bounds one POSTed frame.
const DefaultMaxBodySize = 1 << 20

// HTTP hosts the streaming endpoints and auxiliary handlers on one listener.
type HTTP struct {
	addr        string
	sessions    *Sessions
	shutdown    *ShutdownManager
	logger      *zap.Logger
	readTimeout time.Duration
	maxBodySize int64
	corsConfig  *CORSConfig

	ssePath     string
	messagePath string
	wsPath      string
	ws          *webSocket
	extra       map[string]http.Handler

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithMaxBodySize limits the size of a POSTed frame.
func WithMaxBodySize(n int64) HTTPOption {
	return func(h *HTTP) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// WithShutdown sets the graceful shutdown behavior.
func WithShutdown(config ShutdownConfig) HTTPOption {
	return func(h *HTTP) {
		h.shutdown = NewShutdownManager(config, h.sessions.Hub())
	}
}

// WithLogger sets the transport logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHandler mounts an extra handler, such as /metrics.
func WithHandler(pattern string, handler http.Handler) HTTPOption {
	return func(h *HTTP) {
		h.extra[pattern] = handler
	}
}

// NewHTTP creates an HTTP transport. Without WithSSE or WithWebSocket it
// serves only /health and extra handlers.
func NewHTTP(addr string, sessions *Sessions, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:        addr,
		sessions:    sessions,
		logger:      zap.NewNop(),
		readTimeout: 30 * time.Second,
		maxBodySize: DefaultMaxBodySize,
		extra:       make(map[string]http.Handler),
	}
	h.shutdown = NewShutdownManager(DefaultShutdownConfig(), sessions.Hub())

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Handler returns the routed handler, wrapped with CORS when configured.
func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": h.sessions.Hub().Len(),
		})
	})

	if h.ssePath != "" {
		mux.HandleFunc(h.ssePath, h.handleStream)
		mux.HandleFunc(h.messagePath, h.handleMessage)
	}
	if h.wsPath != "" {
		mux.HandleFunc(h.wsPath, h.handleWebSocket)
	}
	for pattern, handler := range h.extra {
		mux.Handle(pattern, handler)
	}

	if h.corsConfig != nil {
		return CORSHandler(*h.corsConfig, mux)
	}
	return mux
}

// Serve listens on the configured address until ctx is canceled, then
// drains sessions and stops the server.
func (h *HTTP) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	// No write timeout: event streams stay open for the life of a session.
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: h.readTimeout,
	}
	h.mu.Unlock()
	h.logger.Info("listening", zap.String("addr", h.listenAddr))

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return h.stop()
	case err := <-errCh:
		return err
	}
}

func (h *HTTP) stop() error {
	drainErr := h.shutdown.Shutdown(context.Background())
	if drainErr != nil {
		h.logger.Warn("sessions did not drain in time", zap.Error(drainErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdown.config.Timeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	h.logger.Info("http server stopped")
	return nil
}
