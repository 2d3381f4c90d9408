package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dawsonw/scriptmgr/internal/history"
	"github.com/dawsonw/scriptmgr/internal/logbuf"
	"github.com/dawsonw/scriptmgr/internal/metrics"
	"github.com/dawsonw/scriptmgr/internal/registry"
)

const startTimeLayout = "2006-01-02 15:04:05"

// Controller owns the process records and log buffers for every script it
// manages and serializes lifecycle operations per script id, so two
// concurrent starts (or a start racing a stop) can never produce two live
// processes for one id.
type Controller struct {
	reg  *registry.Registry
	hist history.Sink

	// escalation timing; shortened in tests
	termWait     time.Duration
	killWait     time.Duration
	restartPause time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	records map[string]*Record
	reasons map[string]StopReason
	bufs    map[string]*logbuf.Buffer
}

func New(reg *registry.Registry) *Controller {
	return &Controller{
		reg:          reg,
		termWait:     5 * time.Second,
		killWait:     2 * time.Second,
		restartPause: time.Second,
		locks:        make(map[string]*sync.Mutex),
		records:      make(map[string]*Record),
		reasons:      make(map[string]StopReason),
		bufs:         make(map[string]*logbuf.Buffer),
	}
}

// SetHistorySink attaches an optional run-history sink.
func (c *Controller) SetHistorySink(s history.Sink) {
	c.mu.Lock()
	c.hist = s
	c.mu.Unlock()
}

// Info is a snapshot merging static config with live status.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Command     string `json:"command"`
	WorkDir     string `json:"working_dir"`
	AutoRestart bool   `json:"auto_restart"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`

	Status       string  `json:"status"` // "running" or "stopped"
	PID          int     `json:"pid,omitempty"`
	StartTime    string  `json:"start_time,omitempty"`
	RestartCount int     `json:"restart_count"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemoryMB     float64 `json:"memory_mb"`
}

// Start launches a script with a fresh restart counter.
func (c *Controller) Start(id string) (int, error) {
	lk := c.lockFor(id)
	lk.Lock()
	defer lk.Unlock()
	return c.startLocked(id, 0)
}

// StartWithRestartCount launches a script preserving the restart lineage;
// used by the reconciler on auto-restart.
func (c *Controller) StartWithRestartCount(id string, restarts int) (int, error) {
	lk := c.lockFor(id)
	lk.Lock()
	defer lk.Unlock()
	return c.startLocked(id, restarts)
}

func (c *Controller) startLocked(id string, restarts int) (int, error) {
	cfg, ok := c.reg.Script(id)
	if !ok {
		return 0, registry.ErrScriptNotFound
	}
	if rec := c.record(id); rec != nil {
		if exited, _ := rec.Exited(); !exited {
			return 0, ErrAlreadyRunning
		}
	}
	// A stale reason from the previous run must never classify this one.
	c.clearReason(id)

	cmdline := RewriteCommand(cfg.Command)
	cmd := BuildCommand(cmdline)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	cmd.Env = append(os.Environ(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONLEGACYWINDOWSSTDIO=0",
	)
	configureSysProcAttr(cmd)

	// stderr merges into stdout, as one capture stream per script.
	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		c.logf(id, "start failed: %v", err)
		slog.Error("script start failed", "id", id, "command", cmdline, "error", err)
		return 0, fmt.Errorf("launch %s: %w", id, err)
	}
	_ = pw.Close()

	rec := newRecord(cmd, restarts)
	c.setRecord(id, rec)
	go c.watch(id, rec, pr)

	pid := rec.PID()
	c.logf(id, "script started (PID: %d)", pid)
	slog.Info("script started", "id", id, "pid", pid, "restarts", restarts)
	metrics.IncStart(id)
	c.recordHistory(id, history.EventStart, pid, 0)
	c.updateRunningGauge()
	return pid, nil
}

// watch drains the output pipe into the log buffer, then reaps the
// process and records its exit code.
func (c *Controller) watch(id string, rec *Record, out io.ReadCloser) {
	c.capture(id, out)
	err := rec.cmd.Wait()
	rec.markExited(exitCodeFrom(err, rec.cmd))
	c.updateRunningGauge()
}

func (c *Controller) capture(id string, out io.ReadCloser) {
	defer func() { _ = out.Close() }()
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		// Invalid bytes are substituted, never fatal.
		c.Buffer(id).Append(strings.ToValidUTF8(strings.TrimSpace(line), "�"))
	}
	if err := sc.Err(); err != nil {
		c.logf(id, "output capture ended: %v", err)
	}
}

// Stop terminates a running script, escalating across the process tree.
// reason is recorded before any signal is sent so a concurrent reconciler
// tick cannot misclassify the exit.
func (c *Controller) Stop(ctx context.Context, id string, reason StopReason) error {
	lk := c.lockFor(id)
	lk.Lock()
	defer lk.Unlock()
	return c.stopLocked(ctx, id, reason)
}

func (c *Controller) stopLocked(ctx context.Context, id string, reason StopReason) error {
	rec := c.record(id)
	if rec == nil {
		return ErrNotRunning
	}
	if exited, _ := rec.Exited(); exited {
		return ErrNotRunning
	}

	c.setReason(id, reason)
	pid := rec.PID()
	c.logf(id, "stopping process (PID: %d)...", pid)

	confirmed := c.terminateTree(ctx, id, rec, pid)
	if confirmed {
		_, code := rec.Exited()
		c.logf(id, "process confirmed stopped (exit code: %d)", code)
	} else {
		c.logf(id, "warning: process may still be running")
		slog.Warn("termination unconfirmed", "id", id, "pid", pid)
	}

	c.deleteRecord(id)
	c.updateRunningGauge()
	if reason == StopCrash {
		c.logf(id, "script exited unexpectedly")
	} else {
		c.logf(id, "script stopped")
	}
	slog.Info("script stopped", "id", id, "reason", string(reason))
	metrics.IncStop(id)
	_, code := rec.Exited()
	c.recordHistory(id, history.EventStop, pid, code)
	return nil
}

// Restart stops (best-effort) and starts the script, surfacing the start
// outcome.
func (c *Controller) Restart(ctx context.Context, id string) (int, error) {
	lk := c.lockFor(id)
	lk.Lock()
	defer lk.Unlock()
	if err := c.stopLocked(ctx, id, StopManual); err != nil && err != ErrNotRunning {
		slog.Warn("restart: stop failed", "id", id, "error", err)
	}
	select {
	case <-time.After(c.restartPause):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return c.startLocked(id, 0)
}

// Toggle flips the enabled flag. Disabling a running script stops it with
// a manual reason and clears the stop reason.
func (c *Controller) Toggle(ctx context.Context, id string) (bool, error) {
	lk := c.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	cfg, ok := c.reg.Script(id)
	if !ok {
		return false, registry.ErrScriptNotFound
	}
	enabled := !cfg.Enabled
	if err := c.reg.SetEnabled(id, enabled); err != nil {
		return cfg.Enabled, err
	}
	if !enabled {
		if err := c.stopLocked(ctx, id, StopManual); err != nil && err != ErrNotRunning {
			slog.Warn("toggle: stop failed", "id", id, "error", err)
		}
		c.clearReason(id)
		c.logf(id, "script disabled")
	} else {
		c.logf(id, "script enabled")
	}
	return enabled, nil
}

// Running reports whether a live process record exists for id.
func (c *Controller) Running(id string) bool {
	rec := c.record(id)
	if rec == nil {
		return false
	}
	exited, _ := rec.Exited()
	return !exited
}

// Info returns config merged with live status and a best-effort CPU and
// memory sample.
func (c *Controller) Info(id string) (Info, error) {
	cfg, ok := c.reg.Script(id)
	if !ok {
		return Info{}, registry.ErrScriptNotFound
	}
	info := Info{
		ID:          id,
		Name:        cfg.Name,
		Command:     cfg.Command,
		WorkDir:     cfg.WorkDir,
		AutoRestart: cfg.AutoRestart,
		Enabled:     cfg.Enabled,
		Description: cfg.Description,
		Status:      "stopped",
	}
	rec := c.record(id)
	if rec == nil {
		return info, nil
	}
	info.RestartCount = rec.Restarts()
	info.StartTime = rec.StartedAt().Format(startTimeLayout)
	if exited, _ := rec.Exited(); !exited {
		info.Status = "running"
		info.PID = rec.PID()
		sample := metrics.SampleProcess(info.PID)
		info.CPUPercent = sample.CPUPercent
		info.MemoryMB = sample.MemoryMB
	}
	return info, nil
}

// Logs returns the tail of the script's log buffer.
func (c *Controller) Logs(id string, lines int) []string {
	return c.Buffer(id).Tail(lines)
}

// Reason returns the recorded stop reason for the script's last run.
func (c *Controller) Reason(id string) (StopReason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reasons[id]
	return r, ok
}

// TrackedIDs lists script ids with a process record, live or pending
// cleanup.
func (c *Controller) TrackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	return ids
}

// HandleExit classifies an observed exit and applies the auto-restart
// policy. Called by the reconciler for each tracked id per tick.
func (c *Controller) HandleExit(ctx context.Context, id string, backoff time.Duration) {
	lk := c.lockFor(id)
	lk.Lock()
	rec := c.record(id)
	if rec == nil {
		lk.Unlock()
		return
	}
	exited, code := rec.Exited()
	if !exited {
		lk.Unlock()
		return
	}
	if _, ok := c.Reason(id); !ok {
		c.setReason(id, StopCrash)
		metrics.IncCrash(id)
		c.recordHistory(id, history.EventCrash, rec.PID(), code)
	}
	c.logf(id, "process exited (exit code: %d)", code)
	slog.Info("script process exited", "id", id, "exit_code", code)

	cfg, ok := c.reg.Script(id)
	restart := ok && cfg.AutoRestart && cfg.Enabled
	restarts := rec.Restarts()
	c.deleteRecord(id)
	c.updateRunningGauge()
	if restart {
		c.logf(id, "preparing auto-restart...")
	}
	lk.Unlock()

	if !restart {
		return
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	}
	n := restarts + 1
	lk.Lock()
	_, err := c.startLocked(id, n)
	lk.Unlock()
	if err != nil {
		c.logf(id, "auto-restart failed: %v", err)
		slog.Warn("auto-restart failed", "id", id, "error", err)
		return
	}
	c.logf(id, "auto-restart succeeded (restart #%d)", n)
	metrics.IncRestart(id)
}

// StopAll best-effort stops every running script; used at shutdown.
func (c *Controller) StopAll(ctx context.Context) {
	for _, id := range c.TrackedIDs() {
		if err := c.Stop(ctx, id, StopManual); err != nil && err != ErrNotRunning {
			slog.Warn("shutdown stop failed", "id", id, "error", err)
		}
	}
}

// Forget drops the log buffer, stop reason and metrics series for a
// removed script. The caller must have stopped it first.
func (c *Controller) Forget(id string) {
	c.mu.Lock()
	delete(c.records, id)
	delete(c.reasons, id)
	delete(c.bufs, id)
	delete(c.locks, id)
	c.mu.Unlock()
	metrics.Forget(id)
}

// Buffer returns the script's log buffer, creating it on demand.
func (c *Controller) Buffer(id string) *logbuf.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bufs[id]
	if !ok {
		b = logbuf.New()
		c.bufs[id] = b
	}
	return b
}

// --- internals ---

func (c *Controller) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk, ok := c.locks[id]
	if !ok {
		lk = &sync.Mutex{}
		c.locks[id] = lk
	}
	return lk
}

func (c *Controller) record(id string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[id]
}

func (c *Controller) setRecord(id string, rec *Record) {
	c.mu.Lock()
	c.records[id] = rec
	c.mu.Unlock()
}

func (c *Controller) deleteRecord(id string) {
	c.mu.Lock()
	delete(c.records, id)
	c.mu.Unlock()
}

func (c *Controller) setReason(id string, r StopReason) {
	c.mu.Lock()
	c.reasons[id] = r
	c.mu.Unlock()
}

func (c *Controller) clearReason(id string) {
	c.mu.Lock()
	delete(c.reasons, id)
	c.mu.Unlock()
}

func (c *Controller) logf(id, format string, args ...any) {
	c.Buffer(id).Append(fmt.Sprintf(format, args...))
}

func (c *Controller) updateRunningGauge() {
	c.mu.Lock()
	n := 0
	for _, rec := range c.records {
		if exited, _ := rec.Exited(); !exited {
			n++
		}
	}
	c.mu.Unlock()
	metrics.SetRunning(n)
}

func (c *Controller) recordHistory(id string, typ history.EventType, pid, code int) {
	c.mu.Lock()
	sink := c.hist
	c.mu.Unlock()
	if sink == nil {
		return
	}
	ev := history.Event{Script: id, Type: typ, PID: pid, ExitCode: code, OccurredAt: time.Now()}
	if err := sink.Record(context.Background(), ev); err != nil {
		slog.Warn("history record failed", "id", id, "event", string(typ), "error", err)
	}
}
