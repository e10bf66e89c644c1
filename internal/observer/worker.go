package observer

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 256

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// worker runs queued jobs one at a time on its own goroutine.
type worker struct {
	name    string
	queue   chan func(ctx context.Context)
	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

func newWorker(name string, size int) *worker {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &worker{
		name:   name,
		queue:  make(chan func(context.Context), size),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (w *worker) SetLogger(logger Logger) {
	w.loggerMu.Lock()
	defer w.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	w.logger = logger
}

func (w *worker) log() Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	return w.logger
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (w *worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)
		go w.run(ctx)
	})
}

// run executes jobs until ctx is done. Jobs get a context that outlives
// the cancellation so queued writes still complete during shutdown; they
// bound themselves with their own timeouts.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case job := <-w.queue:
			job(jobCtx)
		case <-ctx.Done():
			w.drain(jobCtx)
			return
		}
	}
}

// drain runs whatever is still queued at shutdown.
func (w *worker) drain(ctx context.Context) {
	for {
		select {
		case job := <-w.queue:
			job(ctx)
		default:
			return
		}
	}
}

// Stop finishes queued jobs and waits for the worker to exit. Stop before
// Start is a no-op.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.startOnce.Do(func() {})
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
	})
}

// enqueue adds job without blocking. A full queue drops the job.
func (w *worker) enqueue(job func(ctx context.Context)) {
	select {
	case w.queue <- job:
	default:
		n := w.dropped.Add(1)
		w.log().Warn("observer queue full, dropping notification", "observer", w.name, "dropped", n)
	}
}

// Dropped returns the number of notifications dropped on a full queue.
func (w *worker) Dropped() uint64 {
	return w.dropped.Load()
}
