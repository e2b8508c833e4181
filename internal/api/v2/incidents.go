package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/filter"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
)

func (c *Controller) initIncidentRoutes() {
	g := c.Group.Group("/incidents")
	g.GET("", c.ListIncidents)
	g.POST("", c.CreateIncident)
	g.GET("/:id", c.GetIncident)
	g.PATCH("/:id", c.UpdateIncident)
	g.POST("/:id/investigate", c.InvestigateIncident)
	g.POST("/:id/resolve", c.ResolveIncident)
}

// IncidentListResponse is a filtered, sorted incident view.
type IncidentListResponse struct {
	Incidents []monitoring.Incident `json:"incidents"`
	Total     int                   `json:"total"`
}

// ListIncidents takes the same filter parameters as ListAlerts. The default
// sort is createdAt.
func (c *Controller) ListIncidents(ctx echo.Context) error {
	criteria, err := parseCriteria(ctx.QueryParams())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid filter", 0)
	}
	sortBy := ctx.QueryParam("sort")
	if sortBy == "" {
		sortBy = filter.SortCreatedAt
	}
	out := filter.ApplyIncidents(c.lifecycle.Incidents(), criteria, sortBy, filter.ParseOrder(ctx.QueryParam("order")))
	return ctx.JSON(http.StatusOK, IncidentListResponse{Incidents: out, Total: len(out)})
}

func (c *Controller) GetIncident(ctx echo.Context) error {
	inc, err := c.lifecycle.Incident(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Incident not found", 0)
	}
	return ctx.JSON(http.StatusOK, inc)
}

// CreateIncident opens an incident and returns it with status 201.
func (c *Controller) CreateIncident(ctx echo.Context) error {
	var in monitoring.IncidentInput
	if err := ctx.Bind(&in); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	inc, err := c.lifecycle.CreateIncident(ctx.Request().Context(), in)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create incident", 0)
	}
	c.log.Info("incident created",
		logger.String("incident_id", inc.ID),
		logger.String("severity", string(inc.Severity)))
	return ctx.JSON(http.StatusCreated, inc)
}

// UpdateIncident applies a partial update. Status changes go through the
// investigate and resolve routes.
func (c *Controller) UpdateIncident(ctx echo.Context) error {
	var u monitoring.IncidentUpdate
	if err := ctx.Bind(&u); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if u.Status != nil {
		return c.HandleError(ctx, invalidInput("status cannot be patched"), "Invalid update", 0)
	}
	inc, err := c.lifecycle.UpdateIncident(ctx.Request().Context(), ctx.Param("id"), u)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to update incident", 0)
	}
	return ctx.JSON(http.StatusOK, inc)
}

func (c *Controller) InvestigateIncident(ctx echo.Context) error {
	inc, err := c.lifecycle.InvestigateIncident(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to start investigation", 0)
	}
	return ctx.JSON(http.StatusOK, inc)
}

// IncidentResolveRequest carries the resolution text.
type IncidentResolveRequest struct {
	Resolution string `json:"resolution"`
}

func (c *Controller) ResolveIncident(ctx echo.Context) error {
	var req IncidentResolveRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	inc, err := c.lifecycle.ResolveIncident(ctx.Request().Context(), ctx.Param("id"), req.Resolution)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve incident", 0)
	}
	c.log.Info("incident resolved", logger.String("incident_id", inc.ID))
	return ctx.JSON(http.StatusOK, inc)
}
