// Package driver supervises a single WebDriver subprocess (chromedriver).
//
// A Supervisor launches its driver exactly once, with capabilities cleared
// before the driver image is executed, watches it for exit, and guarantees
// the driver's process group is killed on every teardown path: Close (meant
// to be deferred by the owner), a GC cleanup if the Supervisor is dropped
// unclosed, and the kernel's parent-death signal if driverd itself dies.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/moby/sys/reexec"
	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/logger"
	"github.com/kandev/driverd/internal/common/portutil"
	"github.com/kandev/driverd/internal/common/tracing"
	"github.com/kandev/driverd/internal/webdriver"
)

const (
	defaultHost        = "localhost"
	defaultPort        = 4444
	defaultStopTimeout = 5 * time.Second

	// killGrace bounds the wait for exit after SIGKILL.
	killGrace = 2 * time.Second

	// statusAttemptTimeout bounds one readiness request.
	statusAttemptTimeout = 2 * time.Second

	// waitDelay bounds how long Wait keeps copying output after the driver
	// exits, in case a browser it spawned still holds stdout.
	waitDelay = 2 * time.Second
)

// State is the lifecycle state of a Supervisor.
type State int

const (
	StateUnstarted State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Config holds configuration for the supervisor.
type Config struct {
	BinaryPath   string        // Path to the driver binary (auto-detected if empty)
	Host         string        // Host the driver is reached on (default: localhost)
	Port         int           // Port the driver listens on (default: 4444)
	ReadyTimeout time.Duration // Wait for GET /status to answer; 0 disables the wait
	StopTimeout  time.Duration // SIGTERM grace before SIGKILL (default: 5s)
	Env          []string      // Extra environment for the driver, appended to ours
}

// Supervisor owns one driver subprocess.
type Supervisor struct {
	binaryPath   string
	host         string
	port         int
	readyTimeout time.Duration
	stopTimeout  time.Duration
	env          []string
	trampoline   string
	logger       *logger.Logger

	mu      sync.Mutex
	proc    *process
	closed  bool
	cleanup runtime.Cleanup
	exited  chan struct{}

	closeOnce sync.Once
}

// process is the part of a running driver the exit monitor needs. It holds
// no reference back to the Supervisor so an abandoned Supervisor can be
// collected and its cleanup can fire.
type process struct {
	cmd    *exec.Cmd
	pid    int
	port   int
	logger *logger.Logger
	exited chan struct{}

	mu       sync.Mutex
	stopping bool
	waitErr  error
}

// New creates a new Supervisor. Nothing is spawned until Start.
func New(cfg Config, log *logger.Logger) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = findDriverBinary()
	}

	return &Supervisor{
		binaryPath:   cfg.BinaryPath,
		host:         cfg.Host,
		port:         cfg.Port,
		readyTimeout: cfg.ReadyTimeout,
		stopTimeout:  cfg.StopTimeout,
		env:          cfg.Env,
		trampoline:   trampolineName,
		logger:       log.WithComponent("driver-supervisor"),
		exited:       make(chan struct{}),
	}
}

// findDriverBinary attempts to locate chromedriver.
func findDriverBinary() string {
	// 1. Same directory as the current executable
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "chromedriver")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// 2. PATH
	if path, err := exec.LookPath("chromedriver"); err == nil {
		return path
	}

	return "/usr/bin/chromedriver"
}

// Args returns the arguments the driver is launched with.
func (s *Supervisor) Args() []string {
	return []string{"--port=" + strconv.Itoa(s.port), "--verbose"}
}

// Start spawns the driver and, if a ready timeout is configured, waits for
// it to answer its status endpoint. A Supervisor can be started only once.
func (s *Supervisor) Start(ctx context.Context) error {
	proc, err := s.spawn(ctx)
	if err != nil {
		return err
	}

	if s.readyTimeout <= 0 {
		return nil
	}
	if err := s.waitForReady(ctx, proc); err != nil {
		proc.killGroup()
		select {
		case <-proc.exited:
		case <-time.After(killGrace):
		}
		return err
	}

	s.logger.Info("driver is ready", zap.Int("pid", proc.pid), zap.Int("port", s.port))
	return nil
}

func (s *Supervisor) spawn(ctx context.Context) (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.proc != nil {
		return nil, ErrAlreadyStarted
	}

	binary, err := exec.LookPath(s.binaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	// The trampoline execs without a PATH search.
	if abs, err := filepath.Abs(binary); err == nil {
		binary = abs
	}

	if err := portutil.CheckAvailable(s.host, s.port); err != nil {
		return nil, fmt.Errorf("%w: port %d: %w", ErrPortInUse, s.port, err)
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: status pipe: %w", ErrSpawn, err)
	}

	args := append([]string{s.trampoline, binary}, s.Args()...)
	cmd := reexec.Command(args...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.ExtraFiles = []*os.File{statusW}
	cmd.Stdout = newLogWriter(s.logger, "stdout")
	cmd.Stderr = newLogWriter(s.logger, "stderr")
	cmd.WaitDelay = waitDelay
	setProcAttr(cmd)

	s.logger.Info("starting driver subprocess",
		zap.String("binary", binary),
		zap.Int("port", s.port),
		zap.Strings("args", s.Args()))

	if err := cmd.Start(); err != nil {
		_ = statusR.Close()
		_ = statusW.Close()
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	// Only the child may hold the write end, or EOF never arrives.
	_ = statusW.Close()

	if err := readTrampolineStatus(ctx, statusR); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		s.logger.Error("driver launch failed", zap.Error(err))
		return nil, err
	}

	proc := &process{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		port:   s.port,
		logger: s.logger,
		exited: s.exited,
	}
	s.proc = proc
	s.cleanup = runtime.AddCleanup(s, (*process).killGroup, proc)

	go proc.monitor()

	s.logger.Info("driver process started", zap.Int("pid", proc.pid))
	tracing.TraceProcessEvent(ctx, tracing.ProcessSpawned, proc.pid, s.port)
	return proc, nil
}

// waitForReady polls the driver's status endpoint until it reports ready or
// the ready timeout elapses.
func (s *Supervisor) waitForReady(ctx context.Context, proc *process) error {
	client := webdriver.NewClient(s.host, s.port, s.logger)

	// Exponential backoff: 100ms, 200ms, 400ms, 800ms, 1s, 1s, ...
	backoff := 100 * time.Millisecond
	maxBackoff := 1 * time.Second
	deadline := time.NewTimer(s.readyTimeout)
	defer deadline.Stop()

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, statusAttemptTimeout)
		status, err := client.Status(attemptCtx)
		cancel()
		if err == nil && status.Ready {
			return nil
		}

		s.logger.Debug("waiting for driver to be ready",
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-proc.exited:
			return fmt.Errorf("%w: driver exited during startup", ErrNotReady)
		case <-deadline.C:
			return fmt.Errorf("%w: timeout after %s", ErrNotReady, s.readyTimeout)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Alive reports whether the driver has been started and no exit has been
// observed yet. It never blocks and never reaps.
func (s *Supervisor) Alive() bool {
	return s.State() == StateRunning
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	started := s.proc != nil
	s.mu.Unlock()

	if !started {
		return StateUnstarted
	}
	select {
	case <-s.exited:
		return StateExited
	default:
		return StateRunning
	}
}

// Kill sends SIGKILL to the driver's process group. It returns ErrNotRunning
// if the driver was never started or has already exited.
func (s *Supervisor) Kill() error {
	proc := s.running()
	if proc == nil {
		return ErrNotRunning
	}

	proc.setStopping()
	s.logger.Info("killing driver", zap.Int("pid", proc.pid))
	if err := killProcessGroup(proc.pid); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return ErrNotRunning
		}
		return fmt.Errorf("kill driver process group %d: %w", proc.pid, err)
	}
	return nil
}

// Stop gracefully shuts down the driver: SIGTERM to its process group, then
// SIGKILL once ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	proc := s.running()
	if proc == nil {
		return nil
	}

	proc.setStopping()
	s.logger.Info("stopping driver subprocess", zap.Int("pid", proc.pid))

	if err := terminateProcessGroup(proc.pid); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		s.logger.Warn("failed to send SIGTERM, trying SIGKILL", zap.Error(err))
		_ = killProcessGroup(proc.pid)
		return err
	}

	select {
	case <-proc.exited:
		s.logger.Info("driver stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timed out, sending SIGKILL")
		_ = killProcessGroup(proc.pid)
		select {
		case <-proc.exited:
			return nil
		case <-time.After(killGrace):
			return fmt.Errorf("driver did not exit after SIGKILL")
		}
	}
}

// Close tears the driver down if it is still running. It is idempotent and
// never fails; teardown problems are logged. A closed supervisor cannot be
// started.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.proc != nil {
			s.cleanup.Stop()
		}
		s.mu.Unlock()

		if !s.Alive() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			s.logger.Warn("driver teardown failed", zap.Error(err))
		}
	})
	return nil
}

// Wait blocks until the driver exits and returns its exit error, if any.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return ErrNotRunning
	}

	<-proc.exited
	proc.mu.Lock()
	defer proc.mu.Unlock()
	return proc.waitErr
}

// Done is closed when the driver process exits. It never closes for a
// supervisor that was not started.
func (s *Supervisor) Done() <-chan struct{} {
	return s.exited
}

// Port returns the port the driver listens on.
func (s *Supervisor) Port() int {
	return s.port
}

// Host returns the host the driver is reached on.
func (s *Supervisor) Host() string {
	return s.host
}

// Pid returns the driver's process ID, or 0 if it was never started.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.pid
}

// ExitCode returns the driver's exit code, or -1 while it is running or
// if it was killed by a signal.
func (s *Supervisor) ExitCode() int {
	if s.State() != StateExited {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc.cmd.ProcessState == nil {
		return -1
	}
	return s.proc.cmd.ProcessState.ExitCode()
}

// running returns the process if it is live.
func (s *Supervisor) running() *process {
	if s.State() != StateRunning {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (p *process) setStopping() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
}

// killGroup kills the driver's process group if it has not exited.
func (p *process) killGroup() {
	select {
	case <-p.exited:
		return
	default:
	}
	p.setStopping()
	_ = killProcessGroup(p.pid)
}

// monitor waits for the process to exit and signals via the exited channel.
func (p *process) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	stopping := p.stopping
	p.mu.Unlock()

	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}

	switch {
	case stopping:
		p.logger.Info("driver exited", zap.Int("pid", p.pid), zap.Int("exit_code", exitCode))
	case err != nil:
		p.logger.Error("driver exited unexpectedly",
			zap.Int("pid", p.pid),
			zap.Error(err),
			zap.Int("exit_code", exitCode))
	default:
		p.logger.Warn("driver exited", zap.Int("pid", p.pid), zap.Int("exit_code", exitCode))
	}

	tracing.TraceProcessEvent(context.Background(), tracing.ProcessExited, p.pid, p.port)
	close(p.exited)
}
