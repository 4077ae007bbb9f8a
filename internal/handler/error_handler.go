package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"realtime-service/internal/apperror"
	"realtime-service/internal/repository"
)

// handleServiceError maps service layer errors to appropriate HTTP responses
func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sendError(c, apperror.NotFound("resource not found"))
		return
	}
	if errors.Is(err, repository.ErrDatabaseUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   apperror.NewAppError(apperror.CodeInternal, "storage unavailable", ""),
		})
		return
	}

	appErr := apperror.From(err)
	if appErr.Code == apperror.CodeInternal {
		logger.Error("Unhandled service error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	sendError(c, appErr)
}

func sendError(c *gin.Context, appErr *apperror.AppError) {
	c.JSON(apperror.HTTPStatus(appErr.Code), gin.H{
		"success": false,
		"error":   appErr,
	})
}

func sendSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
