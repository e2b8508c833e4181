// Package datastore opens the notification history database.
package datastore

import (
	"context"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/datastore/entities"
	"github.com/hospitalops/livemon/internal/datastore/repository"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/notification"
)

const component = "datastore"

// defaultSQLitePath is used when the sqlite driver has no DSN.
const defaultSQLitePath = "livemon-history.db"

// Store owns the database handle and its repositories.
type Store struct {
	db      *gorm.DB
	History repository.NotificationHistoryRepository
}

// Open connects with the configured driver and migrates the schema.
func Open(settings *conf.HistorySettings, log logger.Logger) (*Store, error) {
	dialector, err := dialectorFor(settings)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, errors.Newf("failed to open history database: %w", err).
			Component(component).
			Category(errors.CategoryStorage).
			Context("driver", driverName(settings)).
			Build()
	}
	s, err := newStore(db)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Module(component).Info("history database ready", logger.String("driver", driverName(settings)))
	}
	return s, nil
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&entities.NotificationHistory{}); err != nil {
		return nil, errors.Newf("failed to migrate history schema: %w", err).
			Component(component).
			Category(errors.CategoryStorage).
			Build()
	}
	return &Store{db: db, History: repository.NewNotificationHistoryRepository(db)}, nil
}

func driverName(settings *conf.HistorySettings) string {
	if settings.Driver == "" {
		return "sqlite"
	}
	return settings.Driver
}

func dialectorFor(settings *conf.HistorySettings) (gorm.Dialector, error) {
	switch driverName(settings) {
	case "sqlite":
		dsn := settings.DSN
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return sqlite.Open(dsn), nil
	case "mysql":
		if settings.DSN == "" {
			return nil, errors.Newf("history.dsn is required for mysql").
				Component(component).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return mysql.Open(settings.DSN), nil
	default:
		return nil, errors.Newf("unsupported history driver %q", settings.Driver).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NotificationHistory adapts the history repository to the dispatcher.
func (s *Store) NotificationHistory() notification.History {
	return historyAdapter{repo: s.History}
}

type historyAdapter struct {
	repo repository.NotificationHistoryRepository
}

func (h historyAdapter) Save(ctx context.Context, n *notification.Notification) error {
	return h.repo.Save(ctx, &entities.NotificationHistory{
		Kind:     string(n.Kind),
		Tag:      n.Tag,
		SourceID: n.SourceID,
		Severity: string(n.Severity),
		Title:    n.Title,
		Body:     n.Body,
		SentAt:   n.CreatedAt,
	})
}

func (h historyAdapter) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return h.repo.DeleteBefore(ctx, cutoff)
}
