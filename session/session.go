package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/progress"
	"github.com/hjlabs/hjmcpsse/protocol"
)

// Session states.
const (
	StateIdle    = "idle"
	StateOpen    = "open"
	StateClosing = "closing"
	StateClosed  = "closed"
)

const (
	eventOpen   = "open"
	eventClose  = "close"
	eventFinish = "finish"
)

// DefaultBuffer is the default capacity of the outbound channel.
const DefaultBuffer = 64

var (
	// ErrNotOpen is returned when a frame arrives outside the Open state.
	ErrNotOpen = errors.New("session is not open")
	// ErrMalformedFrame is returned by Deliver for frames that are not
	// JSON-RPC 2.0. The session closes after reporting it.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrClosed is returned when writing to a closed or lost session.
	ErrClosed = errors.New("session closed")
	// ErrBackpressure is returned when a notification is dropped because
	// the client is not draining Outbound.
	ErrBackpressure = errors.New("outbound buffer full")
)

// Handler serves one request. Notifications return a nil response.
type Handler func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBuffer sets the outbound channel capacity.
func WithBuffer(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// WithMeta attaches transport metadata to every request context.
func WithMeta(key, value string) Option {
	return func(s *Session) {
		s.meta[key] = value
	}
}

// Session is one client connection. Each request runs in its own
// goroutine; responses and notifications leave through a single outbound
// channel in completion order.
type Session struct {
	id      string
	handler Handler
	logger  *zap.Logger
	buffer  int
	meta    protocol.RequestMeta
	machine *fsm.FSM

	// mu orders admission of new requests against Close and guards the
	// sender count. It is never held across a channel send.
	mu      sync.Mutex
	out     chan []byte
	closed  bool
	senders int

	lost     chan struct{}
	lostOnce sync.Once

	ctx      context.Context
	cancel   context.CancelFunc
	inflight *tracker
	wg       sync.WaitGroup

	finishOnce sync.Once
	done       chan struct{}
}

// New creates a session in the Idle state.
func New(handler Handler, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		handler:  handler,
		logger:   zap.NewNop(),
		buffer:   DefaultBuffer,
		meta:     protocol.RequestMeta{},
		lost:     make(chan struct{}),
		inflight: newTracker(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.meta[protocol.MetaSessionID] = s.id
	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.out = make(chan []byte, s.buffer)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateIdle}, Dst: StateOpen},
			{Name: eventClose, Src: []string{StateIdle, StateOpen}, Dst: StateClosing},
			{Name: eventFinish, Src: []string{StateClosing}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug("session state", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	return s.machine.Current()
}

// Outbound returns the channel of encoded frames to write to the client.
// It is closed once the session reaches Closed.
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// InFlight returns the number of requests awaiting a response.
func (s *Session) InFlight() int {
	return s.inflight.active()
}

// Open completes the handshake.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Event(context.Background(), eventOpen)
}

// Deliver decodes one inbound frame and dispatches it. It returns once the
// request is admitted; the response arrives later on Outbound.
func (s *Session) Deliver(frame []byte) error {
	var req protocol.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return s.reject(protocol.NewParseError("parse error: " + err.Error()))
	}
	if perr := req.Validate(); perr != nil {
		return s.reject(perr)
	}

	if req.Method == protocol.MethodCancelled {
		s.cancelRequest(req.Params)
		return nil
	}

	state, duplicate := s.admit(&req)
	switch {
	case state == StateClosing && !req.IsNotification():
		_ = s.send(protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest("session is closing")))
		return ErrNotOpen
	case state != StateOpen:
		return ErrNotOpen
	case duplicate:
		return s.send(protocol.NewErrorResponse(protocol.NullID,
			protocol.NewInvalidRequest("duplicate request id: "+string(req.ID))))
	}
	return nil
}

// admit starts a goroutine for req if the session is open. It reports the
// state seen and whether req reused an in-flight id.
func (s *Session) admit(req *protocol.Request) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.machine.Current()
	if state != StateOpen {
		return state, false
	}

	ctx := protocol.ContextWithRequestMeta(s.ctx, s.meta)
	if req.IsNotification() {
		s.wg.Add(1)
		go s.notification(ctx, req)
		return state, false
	}

	ctx, release, ok := s.inflight.track(ctx, string(req.ID))
	if !ok {
		return state, true
	}
	s.wg.Add(1)
	go s.request(ctx, release, req)
	return state, false
}

// reject reports a malformed frame and closes the session.
func (s *Session) reject(perr *protocol.Error) error {
	s.logger.Warn("malformed frame", zap.Int("code", perr.Code), zap.String("error", perr.Message))
	_ = s.send(protocol.NewErrorResponse(protocol.NullID, perr))
	go func() {
		_ = s.Close(context.Background())
	}()
	return errors.Wrap(ErrMalformedFrame, perr.Message)
}

func (s *Session) notification(ctx context.Context, req *protocol.Request) {
	defer s.wg.Done()
	if _, err := s.handler(ctx, req); err != nil {
		s.logger.Debug("notification failed", zap.String("method", req.Method), zap.Error(err))
	}
}

func (s *Session) request(ctx context.Context, release func(), req *protocol.Request) {
	defer s.wg.Done()
	defer release()

	ctx = protocol.SetRequestMeta(ctx, protocol.MetaRequestID, string(req.ID))
	ctx = progress.WithReporter(ctx, progress.NewReporter(progress.ExtractToken(req.Params), s))

	resp, err := s.handler(ctx, req)
	switch {
	case err != nil:
		resp = protocol.NewErrorResponse(req.ID, protocol.FromError(err))
	case resp == nil:
		resp = protocol.NewErrorResponse(req.ID, protocol.NewInternalError("no response"))
	}
	if err := s.send(resp); err != nil {
		s.logger.Debug("response discarded", zap.String("request_id", string(req.ID)), zap.Error(err))
	}
}

type cancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

func (s *Session) cancelRequest(params json.RawMessage) {
	var p cancelledParams
	if err := json.Unmarshal(params, &p); err != nil || len(p.RequestID) == 0 {
		s.logger.Debug("ignoring malformed cancellation", zap.ByteString("params", params))
		return
	}
	if s.inflight.cancel(string(p.RequestID)) {
		s.logger.Debug("request cancelled",
			zap.String("request_id", string(p.RequestID)),
			zap.String("reason", p.Reason),
		)
	}
}

// Notify sends a server-initiated notification.
func (s *Session) Notify(method string, params any) error {
	return s.send(protocol.NewNotification(method, params))
}

// SendNotification implements progress.Notifier.
func (s *Session) SendNotification(method string, params any) error {
	return s.Notify(method, params)
}

// offer delivers a notification only if the outbound buffer has room.
func (s *Session) offer(method string, params any) error {
	return s.write(protocol.NewNotification(method, params), false)
}

func (s *Session) send(msg any) error {
	return s.write(msg, true)
}

func (s *Session) write(msg any, wait bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	if !s.acquire() {
		return ErrClosed
	}
	defer s.releaseSender()

	select {
	case <-s.lost:
		return ErrClosed
	default:
	}
	if !wait {
		select {
		case s.out <- data:
			return nil
		default:
			return ErrBackpressure
		}
	}
	select {
	case s.out <- data:
		return nil
	case <-s.lost:
		return ErrClosed
	}
}

// acquire registers a sender so out stays open until it is done.
func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.senders++
	return true
}

func (s *Session) releaseSender() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders--
	if s.closed && s.senders == 0 {
		close(s.out)
	}
}

// Close stops admitting requests, lets in-flight requests finish and
// then closes Outbound. If ctx expires first the session is aborted.
func (s *Session) Close(ctx context.Context) error {
	s.beginClose()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.Abort()
		return ctx.Err()
	}
}

// Abort handles a lost connection: in-flight requests are cancelled and
// their results discarded.
func (s *Session) Abort() {
	s.lostOnce.Do(func() {
		close(s.lost)
		s.cancel()
		s.logger.Debug("session aborted")
	})
	s.beginClose()
}

func (s *Session) beginClose() {
	s.mu.Lock()
	if s.machine.Can(eventClose) {
		if err := s.machine.Event(context.Background(), eventClose); err != nil {
			s.logger.Warn("session close", zap.Error(err))
		}
	}
	s.mu.Unlock()

	s.finishOnce.Do(func() {
		go s.finish()
	})
}

func (s *Session) finish() {
	s.wg.Wait()

	s.mu.Lock()
	s.closed = true
	if s.senders == 0 {
		close(s.out)
	}
	s.mu.Unlock()

	s.cancel()
	if err := s.machine.Event(context.Background(), eventFinish); err != nil {
		s.logger.Warn("session finish", zap.Error(err))
	}
	close(s.done)
}
