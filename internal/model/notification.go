// internal/model/notification.go
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an event addressed to a user who was not connected
// when it was pushed. It is counted in connection_established.
type Notification struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string         `gorm:"type:varchar(64);not null;index:idx_user_read" json:"userId"`
	Event     string         `gorm:"type:varchar(64);not null" json:"event"`
	Payload   datatypes.JSON `json:"payload"`
	IsRead    bool           `gorm:"not null;default:false;index:idx_user_read" json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (Notification) TableName() string {
	return "realtime_notifications"
}
