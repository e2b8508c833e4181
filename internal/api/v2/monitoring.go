package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
	"github.com/hospitalops/livemon/internal/subscription"
)

// initMonitoringRoutes registers synchronization control and cached
// resource routes.
func (c *Controller) initMonitoringRoutes() {
	g := c.Group.Group("/monitoring")
	g.GET("/status", c.GetStatus)
	g.PUT("/mode", c.SetMode)
	g.PUT("/interval", c.SetInterval)
	g.POST("/refresh", c.Refresh)

	c.Group.GET("/resources/:kind", c.GetResource)
}

// GetStatus returns the subscription controller status.
func (c *Controller) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.subs.Status())
}

// ModeRequest switches between push and poll synchronization.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode restarts synchronization in the requested mode.
func (c *Controller) SetMode(ctx echo.Context) error {
	var req ModeRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	mode, err := subscription.ParseMode(req.Mode)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid mode", 0)
	}
	if err := c.subs.SetMode(mode); err != nil {
		return c.HandleError(ctx, err, "Failed to switch mode", 0)
	}
	c.log.Info("synchronization mode changed", logger.String("mode", string(mode)))
	return ctx.JSON(http.StatusOK, c.subs.Status())
}

// IntervalRequest sets the poll interval, either in milliseconds or as a
// duration string such as "15s".
type IntervalRequest struct {
	IntervalMs int64  `json:"intervalMs,omitempty"`
	Interval   string `json:"interval,omitempty"`
}

// SetInterval changes the poll interval.
func (c *Controller) SetInterval(ctx echo.Context) error {
	var req IntervalRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	d := time.Duration(req.IntervalMs) * time.Millisecond
	if req.Interval != "" {
		parsed, err := time.ParseDuration(req.Interval)
		if err != nil {
			return c.HandleError(ctx, invalidInput("interval %q", req.Interval), "Invalid interval", 0)
		}
		d = parsed
	}
	if err := c.subs.SetInterval(d); err != nil {
		return c.HandleError(ctx, err, "Invalid interval", 0)
	}
	return ctx.JSON(http.StatusOK, c.subs.Status())
}

// Refresh refetches every collection.
func (c *Controller) Refresh(ctx echo.Context) error {
	if err := c.subs.RefreshAll(ctx.Request().Context()); err != nil {
		return c.HandleError(ctx, err, "Refresh failed", 0)
	}
	return ctx.JSON(http.StatusOK, c.subs.Status())
}

// ResourceResponse wraps a cached collection.
type ResourceResponse struct {
	Kind       monitoring.Kind   `json:"kind"`
	Data       any               `json:"data"`
	ServerTime time.Time         `json:"serverTime,omitzero"`
	UpdatedAt  time.Time         `json:"updatedAt,omitzero"`
	Source     querycache.Source `json:"source,omitempty"`
	Stale      bool              `json:"stale"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
}

// GetResource returns the cached value of a collection kind. A missing or
// stale entry is refreshed in the background and reported with loading set.
func (c *Controller) GetResource(ctx echo.Context) error {
	kind := monitoring.Kind(ctx.Param("kind"))
	if !kind.Valid() || kind == monitoring.KindAlert || kind == monitoring.KindIncident {
		return c.HandleError(ctx, invalidInput("unknown resource %q", kind), "Unknown resource", http.StatusNotFound)
	}

	e, ok := c.cache.Get(c.subs.KeyFor(kind))
	if !ok && e.Err != nil && !e.Loading {
		return c.HandleError(ctx, e.Err, "Resource unavailable", http.StatusBadGateway)
	}
	resp := ResourceResponse{
		Kind:       kind,
		Data:       e.Value,
		ServerTime: e.ServerTime,
		UpdatedAt:  e.UpdatedAt,
		Source:     e.Source,
		Stale:      e.Stale,
		Loading:    e.Loading,
	}
	if e.Err != nil {
		resp.Error = e.Err.Error()
	}
	return ctx.JSON(http.StatusOK, resp)
}
