package transport

import (
	"io"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/session"
)

// Default SSE routes.
const (
	DefaultSSEPath     = "/sse"
	DefaultMessagePath = "/messages/"
)

// SSE event types.
const (
	EventEndpoint = "endpoint"
	EventMessage  = "message"
)

// SessionQueryParam names the query parameter carrying the session id.
const SessionQueryParam = "session_id"

// WithSSE enables the SSE transport: GET ssePath opens a stream and
// POST messagePath?session_id=... delivers frames to it.
func WithSSE(ssePath, messagePath string) HTTPOption {
	return func(h *HTTP) {
		if ssePath == "" {
			ssePath = DefaultSSEPath
		}
		if messagePath == "" {
			messagePath = DefaultMessagePath
		}
		h.ssePath = ssePath
		h.messagePath = messagePath
	}
}

func (h *HTTP) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.shutdown.IsDraining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		h.logger.Error("failed to upgrade session", zap.Error(err))
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sess, err := h.sessions.Open(NameSSE, r.RemoteAddr)
	if err != nil {
		h.logger.Error("failed to open session", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log := h.logger.With(zap.String("session_id", sess.ID()))

	endpoint := h.messagePath + "?" + url.Values{SessionQueryParam: {sess.ID()}}.Encode()
	if err := writeEvent(stream, EventEndpoint, endpoint); err != nil {
		log.Warn("failed to write endpoint event", zap.Error(err))
		sess.Abort()
		return
	}
	log.Debug("stream opened", zap.String("remote_addr", r.RemoteAddr))

	for {
		select {
		case <-r.Context().Done():
			log.Debug("stream closed by client")
			sess.Abort()
			return
		case frame, ok := <-sess.Outbound():
			if !ok {
				log.Debug("stream finished")
				return
			}
			if err := writeEvent(stream, EventMessage, string(frame)); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				sess.Abort()
				return
			}
		}
	}
}

func writeEvent(stream *sse.Session, typ, data string) error {
	msg := sse.Message{Type: sse.Type(typ)}
	msg.AppendData(data)
	if err := stream.Send(&msg); err != nil {
		return errors.Wrap(err, "send event")
	}
	return errors.Wrap(stream.Flush(), "flush event")
}

func (h *HTTP) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.shutdown.IsDraining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	id := r.URL.Query().Get(SessionQueryParam)
	if id == "" {
		http.Error(w, "missing "+SessionQueryParam, http.StatusBadRequest)
		return
	}
	sess, ok := h.sessions.Hub().Get(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	switch err := sess.Deliver(body); {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("Accepted"))
	case errors.Is(err, session.ErrMalformedFrame):
		http.Error(w, "malformed frame", http.StatusBadRequest)
	case errors.Is(err, session.ErrNotOpen), errors.Is(err, session.ErrClosed):
		http.Error(w, "session is closing", http.StatusServiceUnavailable)
	default:
		h.logger.Error("deliver failed", zap.String("session_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
