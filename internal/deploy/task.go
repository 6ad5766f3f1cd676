package deploy

import (
	"context"
	"sync"
)

// Task is a deployment running in the background.
type Task struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	d   *Deployment
	err error
}

// Start runs req in a background goroutine. Progress is reported on
// Events(), which is closed when the deployment finishes; callers should
// drain it or the deployment blocks. req.Observe, if set, is still called.
func (e *Engine) Start(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	observe := req.Observe
	req.Observe = func(ev Event) {
		if observe != nil {
			observe(ev)
		}
		t.events <- ev
	}

	go func() {
		defer close(t.done)
		defer close(t.events)
		defer cancel()

		d, err := e.Deploy(ctx, req)
		t.mu.Lock()
		t.d, t.err = d, err
		t.mu.Unlock()
	}()
	return t
}

// Events returns the progress channel.
func (t *Task) Events() <-chan Event {
	return t.events
}

// Cancel asks the deployment to stop before its next step. The connection
// is still closed exactly once.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the deployment finishes and returns its result.
func (t *Task) Wait() (*Deployment, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.d, t.err
}
