// Package server provides the gatewatch dashboard: a Gin engine on the
// dashboard port that reports live connection counts, process metrics and
// host information, and serves the embedded web UI.
//
//	GET /metrics             connection counts, uptime, heap, log file sizes
//	GET /metrics/prometheus  the same in Prometheus text format (alias /api/metrics)
//	GET /sysinfo             host facets (JSON, or HTML with render_views)
//	GET /connections         live connections of both gateways
//	GET /sessions            recently closed sessions (when the store is enabled)
//	GET /healthz             liveness
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/gatewatch/internal/models"
	"github.com/vesaa/gatewatch/internal/store"
	"github.com/vesaa/gatewatch/internal/sysinfo"
)

// SnapshotBuilder produces the /metrics body.
type SnapshotBuilder interface {
	Build() models.MetricsSnapshot
}

// HostCollector produces the /sysinfo body.
type HostCollector interface {
	Collect(ctx context.Context) (*sysinfo.HostInfo, error)
}

// ConnectionLister lists the live connections of one server.
type ConnectionLister interface {
	List(server models.ServerID) ([]models.Connection, error)
}

// SessionQuerier answers session history queries.
type SessionQuerier interface {
	Recent(ctx context.Context, server models.ServerID, limit int) ([]models.Session, error)
}

// API holds the dependencies of the dashboard handlers.
type API struct {
	Metrics     SnapshotBuilder
	Host        HostCollector
	Connections ConnectionLister
	// Sessions is nil when session history is disabled.
	Sessions SessionQuerier
	// Prometheus serves the text exposition; nil leaves it unmounted.
	Prometheus  http.Handler
	Logger      *slog.Logger
	RenderViews bool
}

// NewEngine builds the dashboard engine. API routes are registered before
// the static UI, so they take precedence.
func NewEngine(api *API) (*gin.Engine, error) {
	if api.Logger == nil {
		api.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(api.Logger))

	if api.RenderViews {
		tmpl, err := loadTemplates()
		if err != nil {
			return nil, err
		}
		r.SetHTMLTemplate(tmpl)
	}

	r.GET("/metrics", api.handleMetrics)
	if api.Prometheus != nil {
		r.GET("/metrics/prometheus", gin.WrapH(api.Prometheus))
		r.GET("/api/metrics", gin.WrapH(api.Prometheus))
	}
	r.GET("/sysinfo", api.handleSysinfo)
	r.GET("/connections", api.handleConnections)
	r.GET("/sessions", api.handleSessions)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	if err := RegisterStaticFiles(r); err != nil {
		return nil, err
	}
	return r, nil
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleMetrics returns the current snapshot. Building it cannot fail:
// unreadable log files report size 0 and process RSS is omitted.
func (a *API) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.Metrics.Build())
}

// handleSysinfo returns whatever host facets could be collected. Only a
// total failure is an error.
func (a *API) handleSysinfo(c *gin.Context) {
	info, err := a.Host.Collect(c.Request.Context())
	if err != nil {
		a.Logger.Error("error retrieving system info", "error", err)
		c.String(http.StatusInternalServerError, "Error retrieving system info")
		return
	}

	if a.RenderViews && c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		c.HTML(http.StatusOK, sysinfoTemplate, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleConnections lists the open connections of both gateways.
func (a *API) handleConnections(c *gin.Context) {
	out := gin.H{}
	for _, id := range models.Servers {
		conns, err := a.Connections.List(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conns == nil {
			conns = []models.Connection{}
		}
		out[string(id)] = conns
	}
	c.JSON(http.StatusOK, out)
}

// handleSessions returns recently closed sessions. limit defaults to
// store.DefaultLimit; values outside [1, store.MaxLimit] are rejected.
//
//	GET /sessions?server=external&limit=20
func (a *API) handleSessions(c *gin.Context) {
	if a.Sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session history disabled"})
		return
	}

	server := models.ServerID(c.Query("server"))
	if server != "" && !server.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown server"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", store.MaxLimit)})
			return
		}
		limit = n
	}

	sessions, err := a.Sessions.Recent(c.Request.Context(), server, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		a.Logger.Error("querying sessions failed", "error", err)
		c.JSON(status, gin.H{"error": "querying sessions failed"})
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}
