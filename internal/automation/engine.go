package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const (
	defaultQueueSize = 64
	defaultQoS       = 1

	// maxRunTime bounds one rule execution, delays included.
	maxRunTime = time.Hour
)

// LockController is the server operation lock actions use.
type LockController interface {
	ControlLock(ctx context.Context, lockID string, state sesame.LockState) error
}

// Publisher sends publish actions.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

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

// Options configures an Engine.
type Options struct {
	// Locks runs lock actions. Required.
	Locks LockController

	// Publisher runs publish actions. Optional.
	Publisher Publisher
	QoS       byte

	// Recorder audits lock actions. Optional.
	Recorder *audit.Recorder

	QueueSize int
}

// Engine executes rules off the dispatch goroutine.
//
// Thread Safety: Handler closures may be called from any goroutine.
type Engine struct {
	locks     LockController
	publisher Publisher
	qos       byte
	rec       *audit.Recorder

	queue   chan job
	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

type job struct {
	rule  Rule
	event sesame.Event
}

// NewEngine creates an engine. Call Start before events flow.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Locks == nil {
		return nil, fmt.Errorf("lock controller is required")
	}
	if opts.QoS == 0 {
		opts.QoS = defaultQoS
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Engine{
		locks:     opts.Locks,
		publisher: opts.Publisher,
		qos:       opts.QoS,
		rec:       opts.Recorder,
		queue:     make(chan job, opts.QueueSize),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	defer e.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

func (e *Engine) log() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// Start runs queued rules until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.cancel = context.WithCancel(ctx)
		go e.run(ctx)
	})
}

// Stop cancels running rules and waits for the engine goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel == nil {
			close(e.done)
			return
		}
		e.cancel()
		<-e.done
	})
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.queue:
			if err := e.Execute(ctx, j.rule, j.event); err != nil && ctx.Err() == nil {
				e.log().Warn("automation failed", "rule", j.rule.Name, "trigger", j.event.Trigger, "error", err)
			}
		}
	}
}

// Handler returns the trigger callback for rule. It never blocks: when
// the queue is full the event is dropped and logged.
func (e *Engine) Handler(rule Rule) func(sesame.Event) {
	return func(ev sesame.Event) {
		select {
		case e.queue <- job{rule: rule, event: ev}:
		default:
			e.dropped.Add(1)
			e.log().Warn("automation queue full, event dropped", "rule", rule.Name, "trigger", ev.Trigger)
		}
	}
}

// Dropped returns the number of events dropped on a full queue.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

// Execute runs rule for ev synchronously.
func (e *Engine) Execute(ctx context.Context, rule Rule, ev sesame.Event) error {
	ctx, cancel := context.WithTimeout(ctx, maxRunTime)
	defer cancel()

	e.log().Debug("running automation", "rule", rule.Name, "trigger", ev.Trigger, "event", ev.Kind)
	for _, group := range rule.groups() {
		if err := e.runGroup(ctx, rule, ev, group); err != nil {
			return err
		}
	}
	return nil
}

// runGroup runs the actions of one group concurrently. Only failures of
// actions without ContinueOnError are returned.
func (e *Engine) runGroup(ctx context.Context, rule Rule, ev sesame.Event, group []Action) error {
	if len(group) == 1 {
		return e.runAction(ctx, rule, ev, group[0])
	}

	errs := make([]error, len(group))
	var wg sync.WaitGroup
	for i, a := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.runAction(ctx, rule, ev, a)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (e *Engine) runAction(ctx context.Context, rule Rule, ev sesame.Event, a Action) error {
	if a.Delay > 0 {
		timer := time.NewTimer(a.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	var err error
	switch a.Kind {
	case ActionLock:
		err = e.controlLock(ctx, rule, ev, a)
	case ActionPublish:
		err = e.publish(ev, a)
	case ActionDelay:
	default:
		err = fmt.Errorf("%w: kind %q", ErrInvalidAction, a.Kind)
	}

	if err != nil && a.ContinueOnError {
		e.log().Warn("automation action failed, continuing", "rule", rule.Name, "action", a.Kind, "error", err)
		return nil
	}
	return err
}

func (e *Engine) controlLock(ctx context.Context, rule Rule, ev sesame.Event, a Action) error {
	err := e.locks.ControlLock(ctx, a.Lock, a.State)
	delivered := err == nil
	if errors.Is(err, sesame.ErrNoSession) || errors.Is(err, sesame.ErrSendFailed) {
		// Applied locally; the peer picks it up on reconnect.
		e.log().Warn("lock state applied but not delivered", "rule", rule.Name, "lock", a.Lock, "error", err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", a.Lock, err)
	}
	e.rec.Record(ctx, audit.ActionLockControl, audit.EntityLock, a.Lock, "", audit.SourceAutomation, map[string]any{
		"state":     a.State.String(),
		"delivered": delivered,
		"rule":      rule.Name,
		"trigger":   ev.Trigger,
	})
	return nil
}

func (e *Engine) publish(ev sesame.Event, a Action) error {
	if e.publisher == nil {
		return ErrPublisherUnavailable
	}
	payload := expand(a.Payload, ev)
	if err := e.publisher.Publish(a.Topic, []byte(payload), e.qos, a.Retain); err != nil {
		return fmt.Errorf("publish %s: %w", a.Topic, err)
	}
	return nil
}

// expand substitutes the event placeholders in s.
func expand(s string, ev sesame.Event) string {
	return strings.NewReplacer(
		"{trigger}", ev.Trigger,
		"{event}", string(ev.Kind),
		"{tag}", ev.Tag,
		"{address}", ev.Address.String(),
	).Replace(s)
}
