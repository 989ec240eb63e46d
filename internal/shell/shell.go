// Package shell runs command lines in isolated process groups.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single command when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// NoTimeout in Options.Timeout leaves a command bounded only by its context.
const NoTimeout time.Duration = -1

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// Options controls a single command execution.
type Options struct {
	Dir     string          // Working directory; empty means the current directory
	Timeout time.Duration   // Per-command bound; zero means DefaultTimeout, negative means none
	Env     []string        // Extra KEY=VALUE entries appended to the inherited environment
	Procs   *ProcessManager // Optional tracker for shutdown cleanup
}

// Result describes a finished command.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int // -1 when the command did not run to completion
	Duration time.Duration
	TimedOut bool
}

// Output returns stdout followed by stderr, trimmed of surrounding blank lines.
func (r *Result) Output() string {
	return strings.TrimSpace(r.Stdout + r.Stderr)
}

// Run executes a command line with sh -c. A non-zero exit, a timeout or a
// failure to start all return an error alongside the populated Result.
func Run(ctx context.Context, command string, opts Options) (*Result, error) {
	return run(ctx, command, "sh", []string{"-c", command}, opts)
}

// Exec runs name with args directly, without a shell. It behaves like Run.
func Exec(ctx context.Context, name string, args []string, opts Options) (*Result, error) {
	return run(ctx, strings.Join(append([]string{name}, args...), " "), name, args, opts)
}

func run(ctx context.Context, display, name string, args []string, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := newCommand(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	start := time.Now()
	stdout, stderr, err := executeCommand(cmd, opts.Procs)
	res := &Result{
		Command:  display,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: exitCode(cmd, err),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		if timeout < 0 {
			return res, fmt.Errorf("%w: %s", ErrTimeout, display)
		}
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, display)
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// newCommand creates an exec.Cmd in its own process group. Cancelling ctx
// kills the whole group so grandchildren holding the pipes also exit.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// executeCommand starts cmd and drains stdout and stderr concurrently before
// calling Wait, so large outputs cannot fill a pipe buffer and deadlock.
func executeCommand(cmd *exec.Cmd, pm *ProcessManager) (stdout []byte, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		if len(stderr) > 0 {
			return stdout, stderr, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, bytes.TrimSpace(stderr))
		}
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
	return stdout, stderr, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// killProcessGroup sends SIGKILL to the command's entire process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running subprocesses so they can all be killed on shutdown.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess once it has been waited on.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates every tracked process group.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
