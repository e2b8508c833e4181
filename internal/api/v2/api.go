// Package api implements the local v2 HTTP API: synchronization status,
// cached resources, alert and incident lifecycle commands and notification
// history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/datastore/repository"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/querycache"
	"github.com/hospitalops/livemon/internal/subscription"
)

const component = "api"

// Lifecycle is the part of the lifecycle engine the handlers use.
type Lifecycle interface {
	Alerts() []monitoring.Alert
	Alert(id string) (monitoring.Alert, error)
	Acknowledge(ctx context.Context, id, userID string) (monitoring.Alert, error)
	Resolve(ctx context.Context, id, userID, resolution string) (monitoring.Alert, error)
	Suppress(ctx context.Context, id string, durationMinutes int) (monitoring.Alert, error)
	Escalate(ctx context.Context, id string) (monitoring.Alert, error)

	Incidents() []monitoring.Incident
	Incident(id string) (monitoring.Incident, error)
	CreateIncident(ctx context.Context, in monitoring.IncidentInput) (monitoring.Incident, error)
	UpdateIncident(ctx context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, error)
	InvestigateIncident(ctx context.Context, id string) (monitoring.Incident, error)
	ResolveIncident(ctx context.Context, id, resolution string) (monitoring.Incident, error)
}

// Subscription is the part of the subscription controller the handlers use.
type Subscription interface {
	Status() subscription.Status
	KeyFor(kind monitoring.Kind) querycache.Key
	RefreshAll(ctx context.Context) error
	SetMode(m subscription.Mode) error
	SetInterval(d time.Duration) error
}

// Deps are the components served by the API. Inventory, History and
// Metrics may be nil.
type Deps struct {
	Lifecycle    Lifecycle
	Inventory    Inventory
	Subscription Subscription
	Cache        *querycache.Cache
	History      repository.NotificationHistoryRepository
	Metrics      *metrics.Metrics
}

// Controller holds the handlers of the v2 API.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	lifecycle Lifecycle
	subs      Subscription
	cache     *querycache.Cache
	history   repository.NotificationHistoryRepository
	metrics   *metrics.Metrics
	stream    *streamHub
	log       logger.Logger

	// ctx ends the long-lived stream connections on shutdown.
	ctx context.Context
}

// New registers the v2 routes on e under /api/v2 and /metrics.
func New(ctx context.Context, e *echo.Echo, deps Deps, log logger.Logger) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v2"),
		lifecycle: deps.Lifecycle,
		subs:      deps.Subscription,
		cache:     deps.Cache,
		history:   deps.History,
		metrics:   deps.Metrics,
		stream:    newStreamHub(),
		log:       log.Module(component),
		ctx:       ctx,
	}
	c.cache.OnUpdate(c.stream.publish)

	c.initMonitoringRoutes()
	c.initAlertRoutes()
	c.initIncidentRoutes()
	c.initNotificationRoutes()
	c.initStreamRoutes()
	if deps.Inventory != nil {
		c.initInventoryRoutes(deps.Inventory)
	}
	if c.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
	return c
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HandleError writes an error response. A zero status is derived from err.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, status int) error {
	if status == 0 {
		status = statusFor(err)
	}
	if status >= http.StatusInternalServerError {
		c.log.Error(message,
			logger.String("path", ctx.Path()),
			logger.Int("status", status),
			logger.Error(err))
	} else {
		c.log.Debug(message,
			logger.String("path", ctx.Path()),
			logger.Int("status", status),
			logger.Error(err))
	}
	resp := ErrorResponse{Error: message, Code: status}
	if err != nil {
		resp.Message = err.Error()
	}
	return ctx.JSON(status, resp)
}

// statusFor maps lifecycle and data-access errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, monitoring.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, monitoring.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitoring.ErrInvalidInput), errors.CategoryOf(err) == errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.Is(err, monitoring.ErrMutation), errors.Is(err, monitoring.ErrQuery),
		errors.Is(err, monitoring.ErrConnection):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: http.StatusBadRequest})
}

func invalidInput(format string, args ...any) error {
	return errors.Newf(format+": %w", append(args, monitoring.ErrInvalidInput)...).
		Component(component).
		Category(errors.CategoryValidation).
		Build()
}
