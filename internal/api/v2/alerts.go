package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/filter"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
)

// initAlertRoutes registers alert views and lifecycle commands.
func (c *Controller) initAlertRoutes() {
	g := c.Group.Group("/alerts")
	g.GET("", c.ListAlerts)
	g.GET("/summary", c.GetAlertSummary)
	g.GET("/:id", c.GetAlert)
	g.POST("/:id/acknowledge", c.AcknowledgeAlert)
	g.POST("/:id/resolve", c.ResolveAlert)
	g.POST("/:id/suppress", c.SuppressAlert)
	g.POST("/:id/escalate", c.EscalateAlert)
}

// AlertListResponse is a filtered, sorted alert view.
type AlertListResponse struct {
	Alerts []monitoring.Alert `json:"alerts"`
	Total  int                `json:"total"`
}

// ListAlerts handles GET /api/v2/alerts.
// Query parameters: severity, status, category, source, search, dateFrom,
// dateTo, sort (default triggeredAt) and order (asc or desc, default desc).
func (c *Controller) ListAlerts(ctx echo.Context) error {
	criteria, err := parseCriteria(ctx.QueryParams())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid filter", 0)
	}
	sortBy := ctx.QueryParam("sort")
	if sortBy == "" {
		sortBy = filter.SortTriggeredAt
	}
	alerts := filter.Apply(c.lifecycle.Alerts(), criteria, sortBy, filter.ParseOrder(ctx.QueryParam("order")))
	return ctx.JSON(http.StatusOK, AlertListResponse{Alerts: alerts, Total: len(alerts)})
}

// GetAlertSummary counts the alerts matching the filter parameters.
func (c *Controller) GetAlertSummary(ctx echo.Context) error {
	criteria, err := parseCriteria(ctx.QueryParams())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid filter", 0)
	}
	alerts := filter.Apply(c.lifecycle.Alerts(), criteria, "", filter.Desc)
	return ctx.JSON(http.StatusOK, filter.Summarize(alerts))
}

// GetAlert returns one alert.
func (c *Controller) GetAlert(ctx echo.Context) error {
	a, err := c.lifecycle.Alert(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Alert not found", 0)
	}
	return ctx.JSON(http.StatusOK, a)
}

// AcknowledgeRequest names the acknowledging user.
type AcknowledgeRequest struct {
	UserID string `json:"userId"`
}

// AcknowledgeAlert moves an active alert to acknowledged.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	var req AcknowledgeRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	a, err := c.lifecycle.Acknowledge(ctx.Request().Context(), ctx.Param("id"), req.UserID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to acknowledge alert", 0)
	}
	c.log.Info("alert acknowledged",
		logger.String("alert_id", a.ID),
		logger.String("user_id", req.UserID))
	return ctx.JSON(http.StatusOK, a)
}

// ResolveRequest carries the resolving user and resolution text.
type ResolveRequest struct {
	UserID     string `json:"userId"`
	Resolution string `json:"resolution"`
}

// ResolveAlert resolves an alert.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	var req ResolveRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	a, err := c.lifecycle.Resolve(ctx.Request().Context(), ctx.Param("id"), req.UserID, req.Resolution)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve alert", 0)
	}
	c.log.Info("alert resolved", logger.String("alert_id", a.ID))
	return ctx.JSON(http.StatusOK, a)
}

// SuppressRequest sets the suppression window length.
type SuppressRequest struct {
	DurationMinutes int `json:"durationMinutes"`
}

// SuppressAlert suppresses an alert for a number of minutes.
func (c *Controller) SuppressAlert(ctx echo.Context) error {
	var req SuppressRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	a, err := c.lifecycle.Suppress(ctx.Request().Context(), ctx.Param("id"), req.DurationMinutes)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to suppress alert", 0)
	}
	return ctx.JSON(http.StatusOK, a)
}

// EscalateAlert raises the escalation level of an alert by one.
func (c *Controller) EscalateAlert(ctx echo.Context) error {
	a, err := c.lifecycle.Escalate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to escalate alert", 0)
	}
	c.log.Info("alert escalated",
		logger.String("alert_id", a.ID),
		logger.Int("level", a.EscalationLevel))
	return ctx.JSON(http.StatusOK, a)
}
