// internal/model/message.go
package model

import (
	"time"

	"realtime-service/internal/domain"
)

// Message is the persisted form of a dispatched message
type Message struct {
	MessageID   string    `gorm:"type:varchar(36);primaryKey" json:"messageId"`
	RoomID      string    `gorm:"type:varchar(128);not null;index:idx_room_created" json:"roomId"`
	SenderID    string    `gorm:"type:varchar(64);not null;index" json:"senderId"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"type:varchar(20);default:'text'" json:"messageType"`
	ReplyTo     *string   `gorm:"type:varchar(36)" json:"replyTo,omitempty"`
	CreatedAt   time.Time `gorm:"index:idx_room_created" json:"createdAt"`
}

func (Message) TableName() string {
	return "realtime_messages"
}

// FromDomainMessage converts a dispatched message to its row
func FromDomainMessage(msg *domain.Message) *Message {
	return &Message{
		MessageID:   msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: string(msg.Type),
		ReplyTo:     msg.ReplyTo,
		CreatedAt:   msg.Timestamp,
	}
}
