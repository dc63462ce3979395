package session

import (
	"context"
	"sync"
)

// tracker records the in-flight requests of one session by request id.
type tracker struct {
	mu       sync.Mutex
	requests map[string]context.CancelFunc
}

func newTracker() *tracker {
	return &tracker{requests: make(map[string]context.CancelFunc)}
}

// track registers id and returns a cancellable context for it. It reports
// false when id is already in flight.
func (t *tracker) track(ctx context.Context, id string) (context.Context, func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.requests[id]; ok {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(ctx)
	t.requests[id] = cancel
	return ctx, func() {
		cancel()
		t.mu.Lock()
		delete(t.requests, id)
		t.mu.Unlock()
	}, true
}

// cancel cancels the context of an in-flight request. The id stays
// reserved until the request's release func runs.
func (t *tracker) cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.requests[id]
	if ok {
		cancel()
	}
	return ok
}

func (t *tracker) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}
