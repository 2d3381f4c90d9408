package lifecycle

import (
	"context"
	"log/slog"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// terminateTree stops the process rooted at pid: graceful group signal,
// then per-descendant terminate via the process table, then kill for
// survivors. Returns true once the root process is confirmed reaped.
func (c *Controller) terminateTree(ctx context.Context, id string, rec *Record, pid int) bool {
	if err := signalGroupTerm(pid); err != nil {
		slog.Debug("group terminate signal failed", "id", id, "pid", pid, "error", err)
	}
	if waitExit(ctx, rec, c.termWait) {
		return true
	}

	procs, err := treeProcesses(pid)
	if err != nil {
		slog.Debug("process tree enumeration failed", "id", id, "pid", pid, "error", err)
		return c.terminateDirect(ctx, id, rec, pid)
	}

	c.logf(id, "terminating process tree (%d processes)...", len(procs))
	for _, p := range procs {
		if err := p.Terminate(); err != nil {
			slog.Debug("terminate failed", "id", id, "pid", p.Pid, "error", err)
		}
	}
	gone := waitProcsGone(ctx, procs, c.termWait)
	if !gone {
		for _, p := range procs {
			if running, _ := p.IsRunning(); running {
				c.logf(id, "force killing PID %d", p.Pid)
				if err := p.Kill(); err != nil {
					slog.Debug("kill failed", "id", id, "pid", p.Pid, "error", err)
				}
			}
		}
	}
	return waitExit(ctx, rec, c.killWait)
}

// terminateDirect is the fallback when the process table cannot be read:
// escalate on the group alone.
func (c *Controller) terminateDirect(ctx context.Context, id string, rec *Record, pid int) bool {
	if err := signalGroupKill(pid); err != nil {
		slog.Debug("group kill failed", "id", id, "pid", pid, "error", err)
	}
	return waitExit(ctx, rec, c.killWait)
}

// treeProcesses returns the process and all its descendants, root first.
// Children are walked breadth-first since the process table only links
// one generation at a time.
func treeProcesses(pid int) ([]*gops.Process, error) {
	root, err := gops.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	procs := []*gops.Process{root}
	queue := []*gops.Process{root}
	seen := map[int32]bool{root.Pid: true}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, ch := range children {
			if seen[ch.Pid] {
				continue
			}
			seen[ch.Pid] = true
			procs = append(procs, ch)
			queue = append(queue, ch)
		}
	}
	return procs, nil
}

// waitExit waits for the watcher to reap the process, bounded by d and
// the caller's context.
func waitExit(ctx context.Context, rec *Record, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-rec.WaitDone():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// waitProcsGone polls until every process in the list has exited or the
// deadline passes.
func waitProcsGone(ctx context.Context, procs []*gops.Process, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		alive := false
		for _, p := range procs {
			if running, err := p.IsRunning(); err == nil && running {
				alive = true
				break
			}
		}
		if !alive {
			return true
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
