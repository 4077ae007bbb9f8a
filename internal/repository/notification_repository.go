package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"realtime-service/internal/database"
	"realtime-service/internal/model"
)

// NotificationRepository stores events for users that were offline when they
// were pushed, and counts the pending ones.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) conn() *gorm.DB {
	if r.db != nil {
		return r.db
	}
	return database.GetDB()
}

// SendOffline stores payload for userID so it can be delivered on next connect.
func (r *NotificationRepository) SendOffline(ctx context.Context, userID, event string, payload any) error {
	db := r.conn()
	if db == nil {
		return ErrDatabaseUnavailable
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	notification := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Event:     event,
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(notification).Error
}

// CountPending returns the number of unread notifications for userID.
func (r *NotificationRepository) CountPending(ctx context.Context, userID string) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDatabaseUnavailable
	}
	var count int64
	err := db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	db := r.conn()
	if db == nil {
		return ErrDatabaseUnavailable
	}
	return db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// ListPending returns unread notifications for userID, oldest first.
func (r *NotificationRepository) ListPending(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notifications []model.Notification
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
