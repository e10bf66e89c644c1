package sesame

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher is a FIFO queue of work that runs on a single goroutine.
//
// Defer may be called from any goroutine, including from inside an engine
// callback. Queued work runs only from Drain, which the owner calls from its
// dispatch goroutine after the engine step has returned. Work deferred while
// a drain is in progress runs on the next drain.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}

	ran atomic.Bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Defer queues work to run after the current invocation. Work queued after
// the dispatcher stopped is dropped.
func (d *Dispatcher) Defer(work func()) {
	if work == nil {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, work)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued items.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain runs every item queued before the call, in submission order, and
// returns how many ran.
func (d *Dispatcher) Drain() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, work := range batch {
		work()
	}
	return len(batch)
}

// Run drives the dispatch loop until ctx is cancelled: poll (the engine
// step) then Drain, once per interval or as soon as work is deferred.
// Queued work still pending at shutdown is drained once more before Run
// returns. A dispatcher runs once; later calls return immediately.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, poll func()) {
	if !d.ran.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer d.stop()

	for {
		if poll != nil {
			poll()
		}
		d.Drain()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) stop() {
	d.Drain()
	d.mu.Lock()
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Call queues fn and waits for it to run. It must not be called from the
// dispatch goroutine; doing so deadlocks.
func (d *Dispatcher) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.mu.Unlock()

	d.Defer(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-d.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrDispatcherStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
