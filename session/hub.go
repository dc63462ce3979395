package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Observer is told when sessions join and leave a Hub.
type Observer interface {
	SessionOpened()
	SessionClosed()
}

// Hub tracks the live sessions of one server.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
	observer Observer
}

// NewHub creates an empty hub. observer may be nil.
func NewHub(logger *zap.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger,
		observer: observer,
	}
}

// Add registers s until it reaches Closed.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.SessionOpened()
	}
	h.logger.Info("session opened", zap.String("session_id", s.ID()))

	go func() {
		<-s.Done()
		h.mu.Lock()
		delete(h.sessions, s.ID())
		h.mu.Unlock()
		if h.observer != nil {
			h.observer.SessionClosed()
		}
		h.logger.Info("session closed", zap.String("session_id", s.ID()))
	}()
}

// Get returns the session with the given id.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends a notification to every open session and returns how
// many accepted it. Sessions whose outbound buffer is full miss it.
func (h *Hub) Broadcast(method string, params any) int {
	n := 0
	for _, s := range h.snapshot() {
		if s.State() != StateOpen {
			continue
		}
		if err := s.offer(method, params); err != nil {
			h.logger.Debug("broadcast skipped", zap.String("session_id", s.ID()), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// CloseAll closes every session, waiting for in-flight requests until ctx
// expires.
func (h *Hub) CloseAll(ctx context.Context) error {
	sessions := h.snapshot()
	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Close(ctx)
		}()
	}
	wg.Wait()
	var err error
	for _, e := range errs {
		err = errors.CombineErrors(err, e)
	}
	return err
}
