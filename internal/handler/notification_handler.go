package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/middleware"
	"realtime-service/internal/model"
)

// NotificationInbox holds events queued while a user was offline.
type NotificationInbox interface {
	ListPending(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	CountPending(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) error
}

type NotificationHandler struct {
	inbox  NotificationInbox
	logger *zap.Logger
}

func NewNotificationHandler(inbox NotificationInbox, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		inbox:  inbox,
		logger: logger,
	}
}

// GetPending returns the caller's undelivered offline notifications.
func (h *NotificationHandler) GetPending(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	ctx := c.Request.Context()

	notifications, err := h.inbox.ListPending(ctx, userID, 50)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	count, err := h.inbox.CountPending(ctx, userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	sendSuccess(c, gin.H{
		"notifications": notifications,
		"total":         count,
	})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if err := h.inbox.MarkAllRead(c.Request.Context(), userID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	sendSuccess(c, gin.H{"userId": userID})
}
