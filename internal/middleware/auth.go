package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/apperror"
	"realtime-service/internal/client"
)

const (
	// ContextUserID is the gin context key holding the authenticated user id.
	ContextUserID = "userId"
	ContextRole   = "role"

	InternalAPIKeyHeader = "X-Internal-Api-Key"
)

func abortWithError(c *gin.Context, appErr *apperror.AppError) {
	c.AbortWithStatusJSON(apperror.HTTPStatus(appErr.Code), gin.H{
		"success": false,
		"error":   appErr,
	})
}

// Auth validates the bearer token from the Authorization header.
func Auth(verifier client.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperror.Authentication("authorization header is required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWithError(c, apperror.Authentication("invalid authorization header format"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		principal, err := verifier.Verify(ctx, parts[1])
		if err != nil {
			abortWithError(c, apperror.Authentication("invalid token"))
			return
		}

		c.Set(ContextUserID, principal.UserID)
		c.Set(ContextRole, principal.Role)
		c.Next()
	}
}

// InternalAuth guards service-to-service routes with a shared API key. An
// empty key disables the internal routes entirely.
func InternalAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   apperror.NewAppError(apperror.CodeForbidden, "internal api disabled", ""),
			})
			return
		}
		provided := c.GetHeader(InternalAPIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			abortWithError(c, apperror.Authentication("invalid internal api key"))
			return
		}
		c.Next()
	}
}
