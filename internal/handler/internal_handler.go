package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
)

// Pusher is the server-side delivery API of the connection gateway.
type Pusher interface {
	SendToUser(ctx context.Context, userID, event string, payload any) bool
	BroadcastToRoom(roomID, event string, payload any)
	DisconnectUser(userID, reason string)
}

type pushRequest struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

type disconnectRequest struct {
	Reason string `json:"reason"`
}

// InternalHandler lets other services push events through the gateway.
type InternalHandler struct {
	pusher Pusher
	logger *zap.Logger
}

func NewInternalHandler(pusher Pusher, logger *zap.Logger) *InternalHandler {
	return &InternalHandler{
		pusher: pusher,
		logger: logger,
	}
}

func (h *InternalHandler) PushToUser(c *gin.Context) {
	req, ok := h.bindPush(c)
	if !ok {
		return
	}
	userID := c.Param("userId")
	online := h.pusher.SendToUser(c.Request.Context(), userID, req.Event, req.Data)

	h.logger.Debug("Pushed event to user",
		zap.String("userId", userID),
		zap.String("event", req.Event),
		zap.Bool("online", online))
	sendSuccess(c, gin.H{"userId": userID, "delivered": online})
}

func (h *InternalHandler) PushToRoom(c *gin.Context) {
	req, ok := h.bindPush(c)
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	h.pusher.BroadcastToRoom(roomID, req.Event, req.Data)
	sendSuccess(c, gin.H{"roomId": roomID})
}

func (h *InternalHandler) Disconnect(c *gin.Context) {
	var req disconnectRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "disconnected by server"
	}

	userID := c.Param("userId")
	h.pusher.DisconnectUser(userID, req.Reason)
	sendSuccess(c, gin.H{"userId": userID})
}

func (h *InternalHandler) bindPush(c *gin.Context) (*pushRequest, bool) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, apperror.Validation("event is required"))
		return nil, false
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("{}")
	}
	return &req, true
}
