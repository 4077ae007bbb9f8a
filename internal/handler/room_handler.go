package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/domain"
	"realtime-service/internal/middleware"
	"realtime-service/internal/model"
)

type RoomReader interface {
	GetRoom(roomID string) (*domain.Room, error)
}

// MessageHistory reads persisted messages of a room, newest first.
type MessageHistory interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]model.Message, error)
}

type RoomHandler struct {
	rooms    RoomReader
	messages MessageHistory
	logger   *zap.Logger
}

func NewRoomHandler(rooms RoomReader, messages MessageHistory, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		messages: messages,
		logger:   logger,
	}
}

// GetRoom returns a live room. Only its members may read it.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.memberRoom(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	sendSuccess(c, gin.H{
		"room":        room,
		"memberCount": len(room.Members),
	})
}

// GetMessages returns persisted history of a live room the caller is in.
func (h *RoomHandler) GetMessages(c *gin.Context) {
	room, err := h.memberRoom(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	messages, err := h.messages.ListByRoom(c.Request.Context(), room.ID, limit)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	sendSuccess(c, messages)
}

func (h *RoomHandler) memberRoom(c *gin.Context) (*domain.Room, error) {
	roomID := c.Param("roomId")
	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := room.Members[c.GetString(middleware.ContextUserID)]; !ok {
		return nil, apperror.Permission("not a member of room " + roomID)
	}
	return room, nil
}
