package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hjlabs/hjmcpsse/session"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for in-flight requests to complete.
	// Default: 10 seconds
	Timeout time.Duration

	// DrainDelay is the time to wait before starting to drain connections.
	// This allows load balancers to remove the server from the pool.
	// Default: 0 (no delay)
	DrainDelay time.Duration

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnDrainStart is called when draining begins (after DrainDelay).
	OnDrainStart func()

	// OnShutdownComplete is called when shutdown is complete.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns sensible defaults for shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 10 * time.Second,
	}
}

// ShutdownManager coordinates graceful shutdown with session draining.
type ShutdownManager struct {
	config ShutdownConfig
	hub    *session.Hub

	draining  atomic.Bool
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager creates a shutdown manager for the sessions in hub.
func NewShutdownManager(config ShutdownConfig, hub *session.Hub) *ShutdownManager {
	if config.Timeout == 0 {
		config.Timeout = DefaultShutdownConfig().Timeout
	}
	return &ShutdownManager{
		config: config,
		hub:    hub,
		doneCh: make(chan struct{}),
	}
}

// IsDraining returns true once new connections and frames are refused.
func (sm *ShutdownManager) IsDraining() bool {
	return sm.draining.Load()
}

// Shutdown stops admitting work and closes every session, letting
// in-flight requests finish within the configured timeout. Sessions still
// busy at the deadline are aborted.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.draining.Store(true)
	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()
	err := sm.hub.CloseAll(timeoutCtx)

	sm.closeOnce.Do(func() {
		close(sm.doneCh)
	})
	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(err)
	}
	return err
}

// Done returns a channel that is closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}
