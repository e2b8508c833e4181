package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hospitalops/livemon/internal/datastore/entities"
)

// maxListLimit caps a single history page.
const maxListLimit = 500

// notificationHistoryRepository implements NotificationHistoryRepository.
type notificationHistoryRepository struct {
	db *gorm.DB
}

// NewNotificationHistoryRepository creates a new NotificationHistoryRepository.
func NewNotificationHistoryRepository(db *gorm.DB) NotificationHistoryRepository {
	return &notificationHistoryRepository{db: db}
}

// Save inserts a history entry.
func (r *notificationHistoryRepository) Save(ctx context.Context, entry *entities.NotificationHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save notification history: %w", err)
	}
	return nil
}

func (r *notificationHistoryRepository) filtered(ctx context.Context, filter HistoryFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entities.NotificationHistory{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.SourceID != "" {
		query = query.Where("source_id = ?", filter.SourceID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("sent_at >= ?", filter.Since)
	}
	return query
}

// List returns entries matching filter, newest first, and the total number
// of matching entries.
func (r *notificationHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]entities.NotificationHistory, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notification history: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	query := r.filtered(ctx, filter).Order("sent_at DESC").Order("id DESC").Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var items []entities.NotificationHistory
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notification history: %w", err)
	}
	return items, total, nil
}

// DeleteAll deletes every history entry.
func (r *notificationHistoryRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.NotificationHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete notification history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBefore deletes entries sent before the given time.
func (r *notificationHistoryRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("sent_at < ?", before).Delete(&entities.NotificationHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete notification history before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
