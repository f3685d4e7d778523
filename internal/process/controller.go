// Package process runs the external rsync/ssh subprocesses. A Controller
// owns at most one in-flight process and lets another goroutine kill it.
package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/logging"
)

const (
	// DefaultProbeDeadline bounds existence and listing probes.
	DefaultProbeDeadline = 30 * time.Second

	// outputTailLines is how much combined output is kept per run.
	outputTailLines = 200

	// waitDelay bounds how long Wait keeps reading pipes held open by
	// grandchildren after the process itself has exited.
	waitDelay = 5 * time.Second
)

// Run states. Exactly one transition away from stateRunning wins; the
// winner decides how the run is reported.
const (
	stateRunning int32 = iota
	stateExited
	stateTerminated
	stateInterrupted
	stateTimedOut
)

// Result describes how a process ended.
type Result struct {
	ExitCode    int
	Terminated  bool // killed by Terminate
	Interrupted bool // the waiting caller's context was cancelled
	TimedOut    bool // killed by the watchdog
	Output      []string
	Duration    time.Duration
}

type running struct {
	cmd   *exec.Cmd
	state atomic.Int32
}

// stop moves the run into the given state and kills the process. It returns
// false if the run already left the running state.
func (r *running) stop(state int32) bool {
	if !r.state.CompareAndSwap(stateRunning, state) {
		return false
	}
	killProcess(r.cmd)
	return true
}

// Controller starts processes and holds the handle of the current one.
type Controller struct {
	slot   atomic.Pointer[running]
	logger *logging.Logger
}

// NewController creates a Controller that logs through logger.
func NewController(logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{logger: logger}
}

// Run starts argv and blocks until it exits, is terminated, or ctx is done.
// A process that cannot be started is reported as an error, not a Result.
func (c *Controller) Run(ctx context.Context, argv []string) (*Result, error) {
	return c.run(ctx, argv, 0)
}

// RunWithDeadline is Run with a watchdog that kills the process once
// deadline elapses. Use it for probes only; copies may legitimately run long.
func (c *Controller) RunWithDeadline(ctx context.Context, argv []string, deadline time.Duration) (*Result, error) {
	if deadline <= 0 {
		deadline = DefaultProbeDeadline
	}
	return c.run(ctx, argv, deadline)
}

// Terminate kills the process currently in flight. It returns false when
// no process is running. Safe to call from any goroutine.
func (c *Controller) Terminate() bool {
	r := c.slot.Swap(nil)
	if r == nil {
		return false
	}
	c.logger.Info("terminating process", map[string]any{"pid": r.cmd.Process.Pid})
	return r.stop(stateTerminated)
}

// Running reports whether a process is in flight.
func (c *Controller) Running() bool {
	return c.slot.Load() != nil
}

func (c *Controller) run(ctx context.Context, argv []string, deadline time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, errclass.ErrProcessStart.WithMessage("empty command line")
	}

	out := newTailBuffer(outputTailLines)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	c.logger.Debug("running command", map[string]any{"argv": strings.Join(argv, " ")})

	start := time.Now()
	if err := cmd.Start(); err != nil {
		c.logger.ErrorErr("cannot start process", err, map[string]any{"executable": argv[0]})
		return nil, errclass.ErrProcessStart.WithMessagef("start %s: %v", argv[0], err)
	}

	r := &running{cmd: cmd}
	c.slot.Store(r)
	defer c.slot.CompareAndSwap(r, nil)

	var timer *time.Timer
	if deadline > 0 {
		timer = time.AfterFunc(deadline, func() {
			if r.stop(stateTimedOut) {
				c.logger.Warn("process exceeded deadline, killed", map[string]any{
					"pid":      cmd.Process.Pid,
					"deadline": deadline.String(),
				})
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		r.stop(stateInterrupted)
		waitErr = <-done
	}
	r.state.CompareAndSwap(stateRunning, stateExited)
	if timer != nil {
		timer.Stop()
	}

	result := &Result{
		Output:   out.Lines(),
		Duration: time.Since(start),
	}
	switch r.state.Load() {
	case stateTerminated:
		result.Terminated = true
	case stateInterrupted:
		result.Interrupted = true
	case stateTimedOut:
		result.TimedOut = true
	}

	code, err := exitCode(cmd, waitErr)
	if err != nil {
		return nil, err
	}
	result.ExitCode = code

	fields := map[string]any{
		"pid":       cmd.Process.Pid,
		"exit_code": code,
		"duration":  result.Duration.String(),
	}
	if c.logger.DebugEnabled() && len(result.Output) > 0 {
		fields["output"] = strings.Join(result.Output, "\n")
	}
	c.logger.Debug("process finished", fields)
	return result, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	// ErrWaitDelay and friends still leave a usable ProcessState.
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return 0, errclass.ErrProcessStart.WithMessagef("wait %s: %v", cmd.Path, waitErr)
}
