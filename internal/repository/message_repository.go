// internal/repository/message_repository.go
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"realtime-service/internal/database"
	"realtime-service/internal/domain"
	"realtime-service/internal/model"
)

// ErrDatabaseUnavailable is returned while the background connect has not succeeded yet.
var ErrDatabaseUnavailable = errors.New("database not connected")

// MessageRepository persists dispatched messages.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository accepts a nil db; the connection established later by
// database.InitPostgresAsync is picked up on first use.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) conn() *gorm.DB {
	if r.db != nil {
		return r.db
	}
	return database.GetDB()
}

func (r *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	db := r.conn()
	if db == nil {
		return ErrDatabaseUnavailable
	}
	return db.WithContext(ctx).Create(model.FromDomainMessage(msg)).Error
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}
	var msg model.Message
	if err := db.WithContext(ctx).First(&msg, "message_id = ?", messageID).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var messages []model.Message
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
