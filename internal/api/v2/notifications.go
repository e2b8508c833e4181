package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/livemon/internal/datastore/entities"
	"github.com/hospitalops/livemon/internal/datastore/repository"
	"github.com/hospitalops/livemon/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// initNotificationRoutes registers the notification history routes. They
// answer 503 when no history store is configured.
func (c *Controller) initNotificationRoutes() {
	g := c.Group.Group("/notifications")
	g.GET("/history", c.GetNotificationHistory)
	g.DELETE("/history", c.ClearNotificationHistory)
}

// GetNotificationHistory lists shown notifications, newest first.
// Query parameters: kind, source_id, since (RFC3339), limit, offset.
func (c *Controller) GetNotificationHistory(ctx echo.Context) error {
	if c.history == nil {
		return historyUnavailable(ctx)
	}

	f := repository.HistoryFilter{
		Kind:     ctx.QueryParam("kind"),
		SourceID: ctx.QueryParam("source_id"),
		Limit:    defaultHistoryLimit,
	}
	if sinceParam := ctx.QueryParam("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			return badRequest(ctx, "since must be an RFC3339 timestamp")
		}
		f.Since = since
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			f.Limit = min(limit, maxHistoryLimit)
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if offset, err := strconv.Atoi(offsetParam); err == nil && offset >= 0 {
			f.Offset = offset
		}
	}

	items, total, err := c.history.List(ctx.Request().Context(), f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to retrieve notification history", http.StatusInternalServerError)
	}
	if items == nil {
		items = []entities.NotificationHistory{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

// ClearNotificationHistory deletes every history row.
func (c *Controller) ClearNotificationHistory(ctx echo.Context) error {
	if c.history == nil {
		return historyUnavailable(ctx)
	}
	n, err := c.history.DeleteAll(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to clear notification history", http.StatusInternalServerError)
	}
	c.log.Info("notification history cleared", logger.Int64("deleted", n))
	return ctx.JSON(http.StatusOK, map[string]any{"deleted": n})
}

func historyUnavailable(ctx echo.Context) error {
	return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: "Notification history not available",
		Code:  http.StatusServiceUnavailable,
	})
}
