package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor's view of the daemon.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateFailed   State = "failed"
	stateStarting State = "starting"
)

// exitConfig is EX_CONFIG from sysexits.h.
const exitConfig = 78

const (
	defaultName             = "sesame-engine"
	defaultRestartDelay     = 2 * time.Second
	defaultMaxRestartDelay  = 2 * time.Minute
	defaultStableAfter      = time.Minute
	defaultStopTimeout      = 10 * time.Second
	defaultWatchdogInterval = 30 * time.Second
	defaultWatchdogFailures = 3
	watchdogTimeout         = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	// Name labels log records. Defaults to "sesame-engine".
	Name string

	// Binary is the daemon executable. Required.
	Binary string
	Args   []string

	// Env is appended to the server's environment.
	Env []string
	Dir string

	// RestartDelay is the first backoff step; each consecutive failure
	// doubles it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableAfter is how long a run must last to reset the backoff.
	StableAfter time.Duration

	// MaxRestarts bounds consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// StopTimeout is the wait between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// Watchdog is polled while the daemon runs. After WatchdogFailures
	// consecutive errors the daemon is killed and restarted. Optional.
	Watchdog         func(ctx context.Context) error
	WatchdogInterval time.Duration
	WatchdogFailures int
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

// Supervisor runs the daemon and keeps it running until Stop.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	opts Options

	mu       sync.RWMutex
	state    State
	pid      int
	since    time.Time
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a supervisor. Nothing runs until Start.
func New(opts Options) (*Supervisor, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = defaultRestartDelay
	}
	if opts.MaxRestartDelay < opts.RestartDelay {
		opts.MaxRestartDelay = max(defaultMaxRestartDelay, opts.RestartDelay)
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = defaultWatchdogInterval
	}
	if opts.WatchdogFailures <= 0 {
		opts.WatchdogFailures = defaultWatchdogFailures
	}
	return &Supervisor{opts: opts, state: StateStopped, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (s *Supervisor) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

func (s *Supervisor) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Start launches the daemon. A launch failure is returned and nothing is
// retried; later exits are restarted in the background until ctx is
// cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = stateStarting
	s.done = make(chan struct{})
	s.mu.Unlock()

	p, err := s.launch()
	if err != nil {
		s.setExited(StateFailed, err)
		close(s.done)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.supervise(runCtx, p)
	return nil
}

// Stop terminates the daemon and waits for the supervisor to exit.
func (s *Supervisor) Stop() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if done == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-done
}

// running is one launched daemon process.
type running struct {
	cmd    *exec.Cmd
	exited chan error
	start  time.Time
}

func (s *Supervisor) launch() (*running, error) {
	cmd := exec.Command(s.opts.Binary, s.opts.Args...) //nolint:gosec // operator-configured daemon binary
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Dir = s.opts.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.opts.Name, err)
	}

	p := &running{cmd: cmd, exited: make(chan error, 1), start: time.Now()}

	// Wait must not run before the pipes are drained.
	var readers sync.WaitGroup
	readers.Add(2)
	go s.capture(&readers, "stdout", stdout)
	go s.capture(&readers, "stderr", stderr)
	go func() {
		readers.Wait()
		p.exited <- cmd.Wait()
	}()

	s.mu.Lock()
	s.state = StateRunning
	s.pid = cmd.Process.Pid
	s.since = p.start
	s.mu.Unlock()

	s.log().Info("engine daemon started", "name", s.opts.Name, "pid", cmd.Process.Pid, "binary", s.opts.Binary)
	return p, nil
}

func (s *Supervisor) capture(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.log().Debug("engine daemon output", "name", s.opts.Name, "stream", stream, "line", sc.Text())
	}
}

// supervise waits for each run to end and restarts it with backoff.
func (s *Supervisor) supervise(ctx context.Context, p *running) {
	defer close(s.done)

	consecutive := 0
	for {
		err := s.watch(ctx, p)
		if ctx.Err() != nil {
			s.setExited(StateStopped, nil)
			s.log().Info("engine daemon stopped", "name", s.opts.Name)
			return
		}

		if exitCode(err) == exitConfig {
			s.setExited(StateFailed, err)
			s.log().Error("engine daemon rejected its configuration, not restarting", "name", s.opts.Name, "error", err)
			return
		}

		if time.Since(p.start) >= s.opts.StableAfter {
			consecutive = 0
		}
		consecutive++

		if s.opts.MaxRestarts > 0 && consecutive > s.opts.MaxRestarts {
			s.setExited(StateFailed, err)
			s.log().Error("engine daemon keeps failing, giving up", "name", s.opts.Name, "attempts", consecutive-1, "error", err)
			return
		}

		for {
			delay := s.backoff(consecutive)
			s.setExited(StateBackoff, err)
			s.log().Warn("engine daemon exited, restarting", "name", s.opts.Name, "error", err, "delay", delay)

			select {
			case <-ctx.Done():
				s.setExited(StateStopped, err)
				return
			case <-time.After(delay):
			}

			s.mu.Lock()
			s.restarts++
			s.mu.Unlock()

			next, launchErr := s.launch()
			if launchErr == nil {
				p = next
				break
			}
			err = launchErr
			consecutive++
			s.log().Error("failed to restart engine daemon", "name", s.opts.Name, "error", launchErr)
		}
	}
}

// watch blocks until the run exits, the watchdog trips or ctx ends. In
// the last two cases the process group is terminated first.
func (s *Supervisor) watch(ctx context.Context, p *running) error {
	var tick <-chan time.Time
	if s.opts.Watchdog != nil {
		ticker := time.NewTicker(s.opts.WatchdogInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-p.exited:
			return err

		case <-ctx.Done():
			return s.terminate(p)

		case <-tick:
			checkCtx, cancel := context.WithTimeout(ctx, watchdogTimeout)
			err := s.opts.Watchdog(checkCtx)
			cancel()
			if err == nil {
				if failures > 0 {
					s.log().Info("engine daemon healthy again", "name", s.opts.Name)
				}
				failures = 0
				continue
			}
			failures++
			s.log().Warn("engine daemon watchdog failed", "name", s.opts.Name, "error", err, "failures", failures)
			if failures >= s.opts.WatchdogFailures {
				exitErr := s.terminate(p)
				return errors.Join(fmt.Errorf("%w: %w", ErrWatchdog, err), exitErr)
			}
		}
	}
}

// terminate sends SIGTERM to the process group, then SIGKILL after
// StopTimeout.
func (s *Supervisor) terminate(p *running) error {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.log().Warn("failed to signal engine daemon", "name", s.opts.Name, "error", err)
	}

	select {
	case err := <-p.exited:
		return err
	case <-time.After(s.opts.StopTimeout):
	}

	s.log().Warn("engine daemon ignored SIGTERM, killing", "name", s.opts.Name, "timeout", s.opts.StopTimeout)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.log().Error("failed to kill engine daemon", "name", s.opts.Name, "error", err)
	}
	return <-p.exited
}

// backoff returns the delay before restart attempt n (1-based).
func (s *Supervisor) backoff(n int) time.Duration {
	delay := s.opts.RestartDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= s.opts.MaxRestartDelay {
			return s.opts.MaxRestartDelay
		}
	}
	return delay
}

func (s *Supervisor) setExited(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.pid = 0
	if err != nil {
		s.lastErr = err
	}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HealthCheck reports ErrNotRunning unless the daemon process is up.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, st)
	}
	return nil
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.opts.Name, State: s.state, PID: s.pid, Restarts: s.restarts}
	if s.state == StateRunning {
		st.Uptime = time.Since(s.since)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
