// Package scriptmgr supervises long-running external commands: start and
// stop with process-tree cleanup, crash detection with auto-restart,
// bounded log capture, and persisted group/order bookkeeping.
package scriptmgr

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/dawsonw/scriptmgr/internal/config"
	"github.com/dawsonw/scriptmgr/internal/engine"
	"github.com/dawsonw/scriptmgr/internal/history"
	"github.com/dawsonw/scriptmgr/internal/lifecycle"
	"github.com/dawsonw/scriptmgr/internal/metrics"
	"github.com/dawsonw/scriptmgr/internal/registry"
	iapi "github.com/dawsonw/scriptmgr/internal/server"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type ScriptConfig = registry.ScriptConfig

type GroupInfo = registry.GroupInfo

type ScriptInfo = engine.ScriptInfo

type StopReason = lifecycle.StopReason

type HostInfo = metrics.HostInfo

type HistorySink = history.Sink

type HistoryEvent = history.Event

type FileConfig = cfg.FileConfig

type Options = engine.Options

const (
	StopManual = lifecycle.StopManual
	StopCrash  = lifecycle.StopCrash

	ViewAll       = engine.ViewAll
	ViewUngrouped = engine.ViewUngrouped
	BucketAll     = registry.BucketAll
)

// Manager is a thin facade over the internal supervision engine. It
// provides a stable public API for embedding.
type Manager struct{ inner *engine.Engine }

func New(opts Options) (*Manager, error) {
	e, err := engine.New(opts)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: e}, nil
}

func (m *Manager) Close() { m.inner.Close() }

func (m *Manager) ListScripts(view string) []ScriptInfo { return m.inner.ListScripts(view) }
func (m *Manager) GetScript(id string) (ScriptInfo, error) {
	return m.inner.GetScript(id)
}
func (m *Manager) AddScript(id string, c ScriptConfig) error    { return m.inner.AddScript(id, c) }
func (m *Manager) UpdateScript(id string, c ScriptConfig) error { return m.inner.UpdateScript(id, c) }
func (m *Manager) RemoveScript(ctx context.Context, id string) error {
	return m.inner.RemoveScript(ctx, id)
}

func (m *Manager) Start(id string) (int, error) { return m.inner.Start(id) }
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.inner.Stop(ctx, id)
}
func (m *Manager) Restart(ctx context.Context, id string) (int, error) {
	return m.inner.Restart(ctx, id)
}
func (m *Manager) Toggle(ctx context.Context, id string) (bool, error) {
	return m.inner.Toggle(ctx, id)
}

func (m *Manager) Logs(id string, lines int) ([]string, error) { return m.inner.Logs(id, lines) }
func (m *Manager) History(ctx context.Context, id string, limit int) ([]HistoryEvent, error) {
	return m.inner.History(ctx, id, limit)
}
func (m *Manager) StopReason(id string) (StopReason, bool, error) {
	return m.inner.StopReason(id)
}

func (m *Manager) CreateGroup(id, name, description string) error {
	return m.inner.CreateGroup(id, name, description)
}
func (m *Manager) UpdateGroup(id string, name, description *string) error {
	return m.inner.UpdateGroup(id, name, description)
}
func (m *Manager) DeleteGroup(id string) error { return m.inner.DeleteGroup(id) }
func (m *Manager) GroupsInfo() []GroupInfo     { return m.inner.GroupsInfo() }
func (m *Manager) UngroupedScripts() []string  { return m.inner.UngroupedScripts() }
func (m *Manager) MoveToGroup(id, groupID string, position *int) error {
	return m.inner.MoveToGroup(id, groupID, position)
}
func (m *Manager) Reorder(bucket string, ids []string) error {
	return m.inner.Reorder(bucket, ids)
}

func (m *Manager) SystemInfo() HostInfo { return m.inner.SystemInfo() }

// LoadConfig reads a scriptmgr.toml; an empty path yields the defaults.
func LoadConfig(path string) (FileConfig, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the API for an existing
// manager.
func NewHTTPServer(addr, basePath string, serveMetrics bool, m *Manager) *http.Server {
	return iapi.NewServer(addr, basePath, serveMetrics, m.inner)
}

// Serve builds the full daemon from a file config: engine (with optional
// sqlite history and metrics registration), auto-start, and the HTTP
// server.
func Serve(c FileConfig) (*Manager, *http.Server, error) {
	var sink HistorySink
	if c.History.Enabled {
		s, err := history.OpenSQLite(c.History.Path)
		if err != nil {
			return nil, nil, err
		}
		sink = s
	}
	m, err := New(Options{
		StorePath:        c.StorePath,
		MonitorInterval:  c.Monitor.Interval,
		RestartBackoff:   c.Monitor.RestartBackoff,
		History:          sink,
		DisableAutoStart: !c.AutoStart,
	})
	if err != nil {
		return nil, nil, err
	}
	if c.Metrics.Enabled {
		if err := metrics.RegisterDefault(); err != nil {
			m.Close()
			return nil, nil, err
		}
	}
	srv := NewHTTPServer(c.Listen, c.BasePath, c.Metrics.Enabled, m)
	return m, srv, nil
}

// RegisterMetrics registers the script collectors on r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
