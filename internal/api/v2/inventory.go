package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// Inventory is the part of the lifecycle engine that edits monitored
// resources. Reads go through /resources/:kind.
type Inventory interface {
	RunHealthCheck(ctx context.Context, id string) (monitoring.HealthCheck, error)
	CreateHealthCheck(ctx context.Context, hc monitoring.HealthCheck) (monitoring.HealthCheck, error)
	UpdateHealthCheck(ctx context.Context, id string, hc monitoring.HealthCheck) (monitoring.HealthCheck, error)
	DeleteHealthCheck(ctx context.Context, id string) error

	CreateService(ctx context.Context, s monitoring.Service) (monitoring.Service, error)
	UpdateService(ctx context.Context, id string, s monitoring.Service) (monitoring.Service, error)
	DeleteService(ctx context.Context, id string) error

	CreateEndpoint(ctx context.Context, ep monitoring.Endpoint) (monitoring.Endpoint, error)
	UpdateEndpoint(ctx context.Context, id string, ep monitoring.Endpoint) (monitoring.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error

	CreateDependency(ctx context.Context, d monitoring.Dependency) (monitoring.Dependency, error)
	UpdateDependency(ctx context.Context, id string, d monitoring.Dependency) (monitoring.Dependency, error)
	DeleteDependency(ctx context.Context, id string) error

	CreateMaintenanceWindow(ctx context.Context, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, error)
	UpdateMaintenanceWindow(ctx context.Context, id string, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, error)
	CancelMaintenanceWindow(ctx context.Context, id string) (monitoring.MaintenanceWindow, error)

	UpdateConfiguration(ctx context.Context, partial map[string]any) (monitoring.Configuration, error)
}

// resourceOps are the write operations of one inventory resource.
type resourceOps[T any] struct {
	name   string
	create func(context.Context, T) (T, error)
	update func(context.Context, string, T) (T, error)
	remove func(context.Context, string) error
}

func registerResource[T any](c *Controller, g *echo.Group, ops resourceOps[T]) {
	g.POST("", func(ctx echo.Context) error {
		var in T
		if err := ctx.Bind(&in); err != nil {
			return badRequest(ctx, "Invalid request body")
		}
		out, err := ops.create(ctx.Request().Context(), in)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to create "+ops.name, 0)
		}
		return ctx.JSON(http.StatusCreated, out)
	})
	g.PUT("/:id", func(ctx echo.Context) error {
		var in T
		if err := ctx.Bind(&in); err != nil {
			return badRequest(ctx, "Invalid request body")
		}
		out, err := ops.update(ctx.Request().Context(), ctx.Param("id"), in)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to update "+ops.name, 0)
		}
		return ctx.JSON(http.StatusOK, out)
	})
	if ops.remove != nil {
		g.DELETE("/:id", func(ctx echo.Context) error {
			if err := ops.remove(ctx.Request().Context(), ctx.Param("id")); err != nil {
				return c.HandleError(ctx, err, "Failed to delete "+ops.name, 0)
			}
			return ctx.NoContent(http.StatusNoContent)
		})
	}
}

func (c *Controller) initInventoryRoutes(inv Inventory) {
	checks := c.Group.Group("/health-checks")
	registerResource(c, checks, resourceOps[monitoring.HealthCheck]{
		name: "health check", create: inv.CreateHealthCheck, update: inv.UpdateHealthCheck, remove: inv.DeleteHealthCheck,
	})
	checks.POST("/:id/run", func(ctx echo.Context) error {
		hc, err := inv.RunHealthCheck(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return c.HandleError(ctx, err, "Failed to run health check", 0)
		}
		return ctx.JSON(http.StatusOK, hc)
	})

	registerResource(c, c.Group.Group("/services"), resourceOps[monitoring.Service]{
		name: "service", create: inv.CreateService, update: inv.UpdateService, remove: inv.DeleteService,
	})
	registerResource(c, c.Group.Group("/endpoints"), resourceOps[monitoring.Endpoint]{
		name: "endpoint", create: inv.CreateEndpoint, update: inv.UpdateEndpoint, remove: inv.DeleteEndpoint,
	})
	registerResource(c, c.Group.Group("/dependencies"), resourceOps[monitoring.Dependency]{
		name: "dependency", create: inv.CreateDependency, update: inv.UpdateDependency, remove: inv.DeleteDependency,
	})

	// Maintenance windows are cancelled, never deleted.
	maint := c.Group.Group("/maintenance")
	registerResource(c, maint, resourceOps[monitoring.MaintenanceWindow]{
		name: "maintenance window", create: inv.CreateMaintenanceWindow, update: inv.UpdateMaintenanceWindow,
	})
	maint.POST("/:id/cancel", func(ctx echo.Context) error {
		w, err := inv.CancelMaintenanceWindow(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return c.HandleError(ctx, err, "Failed to cancel maintenance window", 0)
		}
		return ctx.JSON(http.StatusOK, w)
	})

	c.Group.PATCH("/configuration", func(ctx echo.Context) error {
		var partial map[string]any
		if err := ctx.Bind(&partial); err != nil {
			return badRequest(ctx, "Invalid request body")
		}
		if len(partial) == 0 {
			return c.HandleError(ctx, invalidInput("empty configuration update"), "Invalid update", 0)
		}
		cfg, err := inv.UpdateConfiguration(ctx.Request().Context(), partial)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to update configuration", 0)
		}
		return ctx.JSON(http.StatusOK, cfg)
	})
}
