package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ConnectionCounter reports live websocket connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	db          func() *gorm.DB
	redis       redis.UniversalClient
	connections ConnectionCounter
	requireDB   bool
}

// NewHealthHandler takes a db getter since the connection may be established
// in the background after startup. requireDB makes readiness fail until it is.
func NewHealthHandler(db func() *gorm.DB, redisClient redis.UniversalClient, connections ConnectionCounter, requireDB bool) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redis:       redisClient,
		connections: connections,
		requireDB:   requireDB,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "realtime-service",
		"connections": h.connections.ConnectionCount(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.requireDB {
		db := h.db()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database not connected",
			})
			return
		}

		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database error",
			})
			return
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database not reachable",
			})
			return
		}
	}

	// Check Redis if configured
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "redis not reachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
