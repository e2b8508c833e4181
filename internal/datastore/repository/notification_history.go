// Package repository persists notification history with GORM.
package repository

import (
	"context"
	"time"

	"github.com/hospitalops/livemon/internal/datastore/entities"
)

// NotificationHistoryRepository stores and queries notification history.
type NotificationHistoryRepository interface {
	Save(ctx context.Context, entry *entities.NotificationHistory) error
	List(ctx context.Context, filter HistoryFilter) ([]entities.NotificationHistory, int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// HistoryFilter controls history listing queries.
type HistoryFilter struct {
	Kind     string
	SourceID string
	Since    time.Time
	Limit    int
	Offset   int
}
