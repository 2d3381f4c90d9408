// Package engine composes the registry, lifecycle controller and
// reconciler into the single entry point the API layer talks to.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dawsonw/scriptmgr/internal/history"
	"github.com/dawsonw/scriptmgr/internal/lifecycle"
	"github.com/dawsonw/scriptmgr/internal/metrics"
	"github.com/dawsonw/scriptmgr/internal/reconciler"
	"github.com/dawsonw/scriptmgr/internal/registry"
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	StorePath        string
	MonitorInterval  time.Duration
	RestartBackoff   time.Duration
	History          history.Sink
	// DisableAutoStart skips launching enabled scripts during New.
	// Construction auto-starts by default; tests opt out.
	DisableAutoStart bool
}

// ScriptInfo augments the lifecycle snapshot with group membership.
type ScriptInfo struct {
	lifecycle.Info
	Group string `json:"group,omitempty"`
}

// View modes for ListScripts.
const (
	ViewAll       = "all"
	ViewUngrouped = "ungrouped"
)

type Engine struct {
	reg  *registry.Registry
	ctrl *lifecycle.Controller
	rec  *reconciler.Reconciler
	hist history.Sink

	cancel context.CancelFunc
}

// New loads the store, wires the controller and starts the monitor loop.
func New(opts Options) (*Engine, error) {
	reg := registry.New(opts.StorePath)
	if err := reg.Load(); err != nil {
		return nil, err
	}
	ctrl := lifecycle.New(reg)
	if opts.History != nil {
		ctrl.SetHistorySink(opts.History)
	}
	backoff := opts.RestartBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	e := &Engine{
		reg:  reg,
		ctrl: ctrl,
		rec:  reconciler.New(ctrl, opts.MonitorInterval, backoff),
		hist: opts.History,
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.rec.Start(ctx)

	if !opts.DisableAutoStart {
		e.autoStart()
	}
	return e, nil
}

func (e *Engine) autoStart() {
	started, failed := 0, 0
	for _, id := range e.reg.ScriptIDs() {
		cfg, ok := e.reg.Script(id)
		if !ok || !cfg.Enabled {
			continue
		}
		if _, err := e.ctrl.Start(id); err != nil {
			failed++
			slog.Warn("auto-start failed", "id", id, "error", err)
			continue
		}
		started++
	}
	slog.Info("auto-start complete", "started", started, "failed", failed)
}

// Close stops the monitor loop and best-effort stops every running
// script.
func (e *Engine) Close() {
	e.cancel()
	e.rec.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.ctrl.StopAll(ctx)
	if e.hist != nil {
		if err := e.hist.Close(); err != nil {
			slog.Warn("history close failed", "error", err)
		}
	}
}

// --- scripts ---

// ListScripts returns script snapshots in persisted display order.
// ViewUngrouped restricts the list to scripts outside any group.
func (e *Engine) ListScripts(view string) []ScriptInfo {
	var ids []string
	if view == ViewUngrouped {
		ids = e.reg.UngroupedScripts()
	} else {
		ids = e.reg.ScriptIDs()
	}
	out := make([]ScriptInfo, 0, len(ids))
	for _, id := range ids {
		info, err := e.ctrl.Info(id)
		if err != nil {
			continue
		}
		out = append(out, ScriptInfo{Info: info, Group: e.reg.GroupOf(id)})
	}
	return out
}

func (e *Engine) GetScript(id string) (ScriptInfo, error) {
	info, err := e.ctrl.Info(id)
	if err != nil {
		return ScriptInfo{}, err
	}
	return ScriptInfo{Info: info, Group: e.reg.GroupOf(id)}, nil
}

func (e *Engine) AddScript(id string, cfg registry.ScriptConfig) error {
	return e.reg.AddScript(id, cfg)
}

func (e *Engine) UpdateScript(id string, cfg registry.ScriptConfig) error {
	return e.reg.UpdateScript(id, cfg)
}

// RemoveScript stops the script if running, then deletes its config,
// order entries, logs and metrics series.
func (e *Engine) RemoveScript(ctx context.Context, id string) error {
	if err := e.ctrl.Stop(ctx, id, lifecycle.StopManual); err != nil &&
		err != lifecycle.ErrNotRunning {
		return err
	}
	if err := e.reg.RemoveScript(id); err != nil {
		return err
	}
	e.ctrl.Forget(id)
	return nil
}

func (e *Engine) Start(id string) (int, error) { return e.ctrl.Start(id) }

func (e *Engine) Stop(ctx context.Context, id string) error {
	return e.ctrl.Stop(ctx, id, lifecycle.StopManual)
}

func (e *Engine) Restart(ctx context.Context, id string) (int, error) {
	return e.ctrl.Restart(ctx, id)
}

func (e *Engine) Toggle(ctx context.Context, id string) (bool, error) {
	return e.ctrl.Toggle(ctx, id)
}

func (e *Engine) Logs(id string, lines int) ([]string, error) {
	if _, ok := e.reg.Script(id); !ok {
		return nil, registry.ErrScriptNotFound
	}
	if lines <= 0 {
		lines = 50
	}
	return e.ctrl.Logs(id, lines), nil
}

// History returns recent run events for a script, newest first. Without a
// configured sink the result is empty.
func (e *Engine) History(ctx context.Context, id string, limit int) ([]history.Event, error) {
	if _, ok := e.reg.Script(id); !ok {
		return nil, registry.ErrScriptNotFound
	}
	if e.hist == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return e.hist.Recent(ctx, id, limit)
}

// StopReason reports why the script's last run ended; ok is false when no
// reason has been recorded.
func (e *Engine) StopReason(id string) (lifecycle.StopReason, bool, error) {
	if _, ok := e.reg.Script(id); !ok {
		return "", false, registry.ErrScriptNotFound
	}
	r, ok := e.ctrl.Reason(id)
	return r, ok, nil
}

// --- groups ---

func (e *Engine) CreateGroup(id, name, description string) error {
	return e.reg.CreateGroup(id, name, description)
}

func (e *Engine) UpdateGroup(id string, name, description *string) error {
	return e.reg.UpdateGroup(id, name, description)
}

func (e *Engine) DeleteGroup(id string) error {
	return e.reg.DeleteGroup(id)
}

func (e *Engine) GroupsInfo() []registry.GroupInfo { return e.reg.GroupsInfo() }

func (e *Engine) UngroupedScripts() []string { return e.reg.UngroupedScripts() }

func (e *Engine) MoveToGroup(id, groupID string, position *int) error {
	return e.reg.MoveScriptToGroup(id, groupID, position)
}

func (e *Engine) Reorder(bucket string, ids []string) error {
	return e.reg.Reorder(bucket, ids)
}

// SystemInfo returns best-effort host CPU, memory and disk usage.
func (e *Engine) SystemInfo() metrics.HostInfo { return metrics.SampleHost() }
