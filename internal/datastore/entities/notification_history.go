package entities

import "time"

// NotificationHistory records each notification the dispatcher showed.
type NotificationHistory struct {
	ID        uint      `gorm:"primaryKey"`
	Kind      string    `gorm:"size:32;not null;index:idx_notification_history_kind_sent,priority:1"`
	Tag       string    `gorm:"size:255;not null;index"`
	SourceID  string    `gorm:"size:255;index"`
	Severity  string    `gorm:"size:16"`
	Title     string    `gorm:"size:512;not null"`
	Body      string    `gorm:"type:text"`
	SentAt    time.Time `gorm:"not null;index:idx_notification_history_kind_sent,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (NotificationHistory) TableName() string {
	return "notification_history"
}
