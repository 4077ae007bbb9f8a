package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/domain"
)

type PresenceReader interface {
	Get(userID string) (*domain.Presence, bool)
}

type PresenceHandler struct {
	presence PresenceReader
	logger   *zap.Logger
}

func NewPresenceHandler(presence PresenceReader, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		logger:   logger,
	}
}

// GetUserStatus returns a user's presence. Users without a record are
// reported offline rather than not found.
func (h *PresenceHandler) GetUserStatus(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		sendError(c, apperror.Validation("userId is required"))
		return
	}

	presence, ok := h.presence.Get(userID)
	if !ok {
		sendSuccess(c, &domain.Presence{UserID: userID, Status: domain.PresenceOffline})
		return
	}
	sendSuccess(c, presence)
}
