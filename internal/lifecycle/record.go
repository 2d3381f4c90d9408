package lifecycle

import (
	"errors"
	"os/exec"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("script already running")
	ErrNotRunning     = errors.New("script not running")
)

// StopReason tags why a script's process ended. Absence means unknown:
// either never stopped or an exit the reconciler has not classified yet.
type StopReason string

const (
	StopManual StopReason = "manual"
	StopCrash  StopReason = "crash"
)

// Record is the runtime handle for one launched script. At most one
// Record exists per script id at any time; the controller enforces this.
type Record struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	restarts  int
	exited    bool
	exitCode  int
	waitDone  chan struct{} // closed by the watcher once Wait returns
}

func newRecord(cmd *exec.Cmd, restarts int) *Record {
	return &Record{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		restarts:  restarts,
		waitDone:  make(chan struct{}),
	}
}

func (r *Record) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

func (r *Record) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

func (r *Record) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}

// markExited records the exit code and releases waiters. Called exactly
// once, by the watcher goroutine that owns cmd.Wait.
func (r *Record) markExited(code int) {
	r.mu.Lock()
	r.exited = true
	r.exitCode = code
	r.mu.Unlock()
	close(r.waitDone)
}

// Exited reports whether the process has been reaped, and its exit code.
func (r *Record) Exited() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited, r.exitCode
}

// WaitDone is closed once the process has been reaped.
func (r *Record) WaitDone() <-chan struct{} { return r.waitDone }

func exitCodeFrom(err error, cmd *exec.Cmd) int {
	if err == nil {
		if cmd.ProcessState != nil {
			return cmd.ProcessState.ExitCode()
		}
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
