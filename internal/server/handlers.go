package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dawsonw/scriptmgr/internal/engine"
	"github.com/dawsonw/scriptmgr/internal/history"
	"github.com/dawsonw/scriptmgr/internal/lifecycle"
	"github.com/dawsonw/scriptmgr/internal/registry"
)

type statusResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(c *gin.Context, message string) {
	writeJSON(c, http.StatusOK, statusResp{Success: true, Message: message})
}

func fail(c *gin.Context, err error) {
	writeJSON(c, httpStatus(err), statusResp{Success: false, Message: err.Error()})
}

func failBad(c *gin.Context, message string) {
	writeJSON(c, http.StatusBadRequest, statusResp{Success: false, Message: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrScriptNotFound),
		errors.Is(err, registry.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrScriptExists),
		errors.Is(err, registry.ErrGroupExists),
		errors.Is(err, lifecycle.ErrAlreadyRunning),
		errors.Is(err, lifecycle.ErrNotRunning):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- scripts ---

func (r *Router) handleListScripts(c *gin.Context) {
	view := c.DefaultQuery("view", engine.ViewAll)
	if view != engine.ViewAll && view != engine.ViewUngrouped {
		failBad(c, "view must be all or ungrouped")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"scripts": r.eng.ListScripts(view),
	})
}

type scriptBody struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Command     string `json:"command"`
	WorkDir     string `json:"working_dir"`
	AutoRestart bool   `json:"auto_restart"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

func (b scriptBody) config() registry.ScriptConfig {
	name := b.Name
	if name == "" {
		name = b.ID
	}
	return registry.ScriptConfig{
		Name:        name,
		Command:     b.Command,
		WorkDir:     b.WorkDir,
		AutoRestart: b.AutoRestart,
		Enabled:     b.Enabled,
		Description: b.Description,
	}
}

func (r *Router) handleAddScript(c *gin.Context) {
	var body scriptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if !isSafeID(body.ID) {
		failBad(c, "invalid script id: allowed [A-Za-z0-9._-]")
		return
	}
	if body.Command == "" {
		failBad(c, "command required")
		return
	}
	if err := r.eng.AddScript(body.ID, body.config()); err != nil {
		fail(c, err)
		return
	}
	ok(c, "script added")
}

func (r *Router) handleGetScript(c *gin.Context) {
	info, err := r.eng.GetScript(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "script": info})
}

func (r *Router) handleUpdateScript(c *gin.Context) {
	var body scriptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if body.Command == "" {
		failBad(c, "command required")
		return
	}
	body.ID = c.Param("id")
	if err := r.eng.UpdateScript(body.ID, body.config()); err != nil {
		fail(c, err)
		return
	}
	ok(c, "script updated")
}

func (r *Router) handleRemoveScript(c *gin.Context) {
	if err := r.eng.RemoveScript(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, "script removed")
}

func (r *Router) handleStart(c *gin.Context) {
	pid, err := r.eng.Start(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"message": "script started",
		"pid":     pid,
	})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.eng.Stop(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, "script stopped")
}

func (r *Router) handleRestart(c *gin.Context) {
	pid, err := r.eng.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"message": "script restarted",
		"pid":     pid,
	})
}

func (r *Router) handleToggle(c *gin.Context) {
	enabled, err := r.eng.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"message": "script toggled",
		"enabled": enabled,
	})
}

func (r *Router) handleLogs(c *gin.Context) {
	lines := 50
	if s := c.Query("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			failBad(c, "lines must be a positive integer")
			return
		}
		lines = n
	}
	logs, err := r.eng.Logs(c.Param("id"), lines)
	if err != nil {
		fail(c, err)
		return
	}
	if logs == nil {
		logs = []string{}
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "logs": logs})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			failBad(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := r.eng.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "events": events})
}

func (r *Router) handleStopReason(c *gin.Context) {
	reason, recorded, err := r.eng.StopReason(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success":  true,
		"reason":   reason,
		"recorded": recorded,
	})
}

type moveBody struct {
	GroupID  string `json:"group_id"`
	Position *int   `json:"position"`
}

func (r *Router) handleMoveToGroup(c *gin.Context) {
	var body moveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if err := r.eng.MoveToGroup(c.Param("id"), body.GroupID, body.Position); err != nil {
		fail(c, err)
		return
	}
	ok(c, "script moved")
}

type reorderBody struct {
	Bucket    string   `json:"bucket"`
	ScriptIDs []string `json:"script_ids"`
}

func (r *Router) handleReorder(c *gin.Context) {
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if body.Bucket == "" {
		body.Bucket = registry.BucketAll
	}
	if err := r.eng.Reorder(body.Bucket, body.ScriptIDs); err != nil {
		fail(c, err)
		return
	}
	ok(c, "order saved")
}

// --- groups ---

func (r *Router) handleGroups(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"success":   true,
		"groups":    r.eng.GroupsInfo(),
		"ungrouped": r.eng.UngroupedScripts(),
	})
}

type groupBody struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r *Router) handleCreateGroup(c *gin.Context) {
	var body groupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if !isSafeID(body.ID) {
		failBad(c, "invalid group id: allowed [A-Za-z0-9._-]")
		return
	}
	name := body.ID
	if body.Name != nil && *body.Name != "" {
		name = *body.Name
	}
	desc := ""
	if body.Description != nil {
		desc = *body.Description
	}
	if err := r.eng.CreateGroup(body.ID, name, desc); err != nil {
		fail(c, err)
		return
	}
	ok(c, "group created")
}

func (r *Router) handleUpdateGroup(c *gin.Context) {
	var body groupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failBad(c, "invalid JSON: "+err.Error())
		return
	}
	if err := r.eng.UpdateGroup(c.Param("id"), body.Name, body.Description); err != nil {
		fail(c, err)
		return
	}
	ok(c, "group updated")
}

func (r *Router) handleDeleteGroup(c *gin.Context) {
	if err := r.eng.DeleteGroup(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, "group deleted")
}

// --- system ---

func (r *Router) handleSystemInfo(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"system":  r.eng.SystemInfo(),
	})
}
