//go:build !windows

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawsonw/scriptmgr/internal/engine"
	"github.com/dawsonw/scriptmgr/internal/history"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func newTestRouter(t *testing.T) (*Router, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(engine.Options{
		StorePath:        filepath.Join(t.TempDir(), "scripts.json"),
		MonitorInterval:  50 * time.Millisecond,
		RestartBackoff:   50 * time.Millisecond,
		DisableAutoStart: true,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return NewRouter(eng, "/dawson", true), eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestScriptCRUD(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	w := do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job", "command": "sleep 30", "enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	// duplicate id
	w = do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job", "command": "sleep 30",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	scripts := decode(t, w)["scripts"].([]any)
	require.Len(t, scripts, 1)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job", nil)
	require.Equal(t, http.StatusOK, w.Code)
	script := decode(t, w)["script"].(map[string]any)
	assert.Equal(t, "stopped", script["status"])

	w = do(t, h, http.MethodPut, "/dawson/api/scripts/job", map[string]any{
		"command": "sleep 60", "description": "updated",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/dawson/api/scripts/job", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScriptValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	w := do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "../evil", "command": "sleep 1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts?view=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartStopViaAPI(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job", "command": "sleep 30", "enabled": true,
	})

	w := do(t, h, http.MethodPost, "/dawson/api/scripts/job/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, decode(t, w)["pid"].(float64), float64(0))

	// double start
	w = do(t, h, http.MethodPost, "/dawson/api/scripts/job/start", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/dawson/api/scripts/job/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job/stop-reason", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "manual", body["reason"])
	assert.Equal(t, true, body["recorded"])

	// stop while stopped
	w = do(t, h, http.MethodPost, "/dawson/api/scripts/job/stop", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleAndLogs(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job", "command": `sh -c 'echo out'`, "enabled": true,
	})

	w := do(t, h, http.MethodPost, "/dawson/api/scripts/job/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["enabled"])

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job/logs?lines=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job/logs?lines=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	for _, id := range []string{"a", "b", "c"} {
		do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
			"id": id, "command": "sleep 1",
		})
	}

	w := do(t, h, http.MethodPost, "/dawson/api/groups", map[string]any{
		"id": "g1", "name": "Group One",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPut, "/dawson/api/scripts/a/group", map[string]any{
		"group_id": "g1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	groups := body["groups"].([]any)
	require.Len(t, groups, 1)
	g := groups[0].(map[string]any)
	assert.Equal(t, "g1", g["id"])
	assert.EqualValues(t, 1, g["script_count"])
	assert.ElementsMatch(t, []any{"b", "c"}, body["ungrouped"].([]any))

	w = do(t, h, http.MethodPut, "/dawson/api/groups/g1", map[string]any{
		"name": "Renamed",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/dawson/api/groups/g1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/dawson/api/groups/g1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReorderEndpoint(t *testing.T) {
	r, eng := newTestRouter(t)
	h := r.Handler()

	for _, id := range []string{"a", "b", "c"} {
		do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
			"id": id, "command": "sleep 1",
		})
	}

	w := do(t, h, http.MethodPut, "/dawson/api/scripts/reorder", map[string]any{
		"script_ids": []string{"c", "a", "b"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	list := eng.ListScripts(engine.ViewAll)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)

	w = do(t, h, http.MethodPut, "/dawson/api/scripts/reorder", map[string]any{
		"script_ids": []string{"ghost"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	sink, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	eng, err := engine.New(engine.Options{
		StorePath:        filepath.Join(t.TempDir(), "scripts.json"),
		MonitorInterval:  50 * time.Millisecond,
		RestartBackoff:   50 * time.Millisecond,
		History:          sink,
		DisableAutoStart: true,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	h := NewRouter(eng, "/dawson", false).Handler()

	do(t, h, http.MethodPost, "/dawson/api/scripts", map[string]any{
		"id": "job", "command": "sleep 30", "enabled": true,
	})
	do(t, h, http.MethodPost, "/dawson/api/scripts/job/start", nil)
	do(t, h, http.MethodPost, "/dawson/api/scripts/job/stop", nil)

	w := do(t, h, http.MethodGet, "/dawson/api/scripts/job/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode(t, w)["events"].([]any)
	require.Len(t, events, 2)
	newest := events[0].(map[string]any)
	assert.Equal(t, "stop", newest["event"])

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/ghost/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/dawson/api/scripts/job/history?limit=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemInfoAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	w := do(t, h, http.MethodGet, "/dawson/api/system/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sys := decode(t, w)["system"].(map[string]any)
	assert.Contains(t, sys, "cpu_percent")

	w = do(t, h, http.MethodGet, "/dawson/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r.Handler(), http.MethodGet, "/dawson/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
