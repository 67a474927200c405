package nats

import (
	"context"
	"sync"
)

// dispatcher runs handlers on their own goroutines, at most len(slots) at once. Once
// the context ends or close is called it admits nothing new, so close can wait for
// the in-flight set without it growing underneath.
type dispatcher struct {
	slots    chan struct{}
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newDispatcher(concurrency int) *dispatcher {
	return &dispatcher{slots: make(chan struct{}, max(concurrency, 1))}
}

// dispatch blocks until a slot is free and starts fn. It reports false when ctx ended
// or the dispatcher closed first; fn does not run then.
func (d *dispatcher) dispatch(ctx context.Context, fn func()) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	d.mu.Lock()
	if d.closed || ctx.Err() != nil {
		d.mu.Unlock()
		<-d.slots
		return false
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer func() {
			<-d.slots
			d.inflight.Done()
		}()
		fn()
	}()
	return true
}

// close stops admission and waits for running handlers.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
}
