// Package server exposes the supervision engine over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dawsonw/scriptmgr/internal/engine"
	"github.com/dawsonw/scriptmgr/internal/metrics"
)

// Router provides embeddable HTTP handlers for the script manager API.
// All routes live under {basePath}/api except the prometheus endpoint at
// {basePath}/metrics. basePath may be empty or start with '/'; no
// trailing slash.
type Router struct {
	eng          *engine.Engine
	basePath     string
	serveMetrics bool
}

func NewRouter(eng *engine.Engine, basePath string, serveMetrics bool) *Router {
	return &Router{
		eng:          eng,
		basePath:     sanitizeBase(basePath),
		serveMetrics: serveMetrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	root := g.Group(r.basePath)

	api := root.Group("/api")
	api.GET("/scripts", r.handleListScripts)
	api.POST("/scripts", r.handleAddScript)
	api.PUT("/scripts/reorder", r.handleReorder)
	api.GET("/scripts/:id", r.handleGetScript)
	api.PUT("/scripts/:id", r.handleUpdateScript)
	api.DELETE("/scripts/:id", r.handleRemoveScript)
	api.POST("/scripts/:id/start", r.handleStart)
	api.POST("/scripts/:id/stop", r.handleStop)
	api.POST("/scripts/:id/restart", r.handleRestart)
	api.POST("/scripts/:id/toggle", r.handleToggle)
	api.GET("/scripts/:id/logs", r.handleLogs)
	api.GET("/scripts/:id/history", r.handleHistory)
	api.GET("/scripts/:id/stop-reason", r.handleStopReason)
	api.PUT("/scripts/:id/group", r.handleMoveToGroup)
	api.GET("/groups", r.handleGroups)
	api.POST("/groups", r.handleCreateGroup)
	api.PUT("/groups/:id", r.handleUpdateGroup)
	api.DELETE("/groups/:id", r.handleDeleteGroup)
	api.GET("/system/info", r.handleSystemInfo)

	if r.serveMetrics {
		root.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, serveMetrics bool, eng *engine.Engine) *http.Server {
	r := NewRouter(eng, basePath, serveMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}
