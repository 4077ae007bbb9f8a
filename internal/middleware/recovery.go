package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
)

// Recovery returns a middleware that recovers from panics
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Stack("stacktrace"),
				)
				abortWithError(c, apperror.Internal(""))
			}
		}()

		c.Next()
	}
}
