package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"realtime-service/internal/client"
	"realtime-service/internal/handler"
	"realtime-service/internal/metrics"
	"realtime-service/internal/middleware"
	"realtime-service/internal/repository"
	"realtime-service/internal/service"
	"realtime-service/internal/websocket"
)

// Config contains dependencies for router setup
type Config struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	BasePath       string
	CORSOrigins    string
	InternalAPIKey string

	DB        func() *gorm.DB
	RequireDB bool
	Redis     redis.UniversalClient

	Verifier      client.TokenVerifier
	Hub           *websocket.Hub
	Presence      *service.PresenceService
	Rooms         *service.RoomService
	Messages      *repository.MessageRepository
	Notifications *repository.NotificationRepository
}

func Setup(cfg Config) *gin.Engine {
	r := gin.New()

	wsPath := cfg.BasePath + "/ws"

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Metrics(cfg.Metrics, wsPath))

	healthHandler := handler.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Hub, cfg.RequireDB)
	presenceHandler := handler.NewPresenceHandler(cfg.Presence, cfg.Logger)
	roomHandler := handler.NewRoomHandler(cfg.Rooms, cfg.Messages, cfg.Logger)
	notificationHandler := handler.NewNotificationHandler(cfg.Notifications, cfg.Logger)
	internalHandler := handler.NewInternalHandler(cfg.Hub, cfg.Logger)

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// token comes from the query string or the Authorization header
		api.GET("/ws", cfg.Hub.HandleWebSocket)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(cfg.Verifier))
		{
			authenticated.GET("/presence/:userId", presenceHandler.GetUserStatus)
			authenticated.GET("/rooms/:roomId", roomHandler.GetRoom)
			authenticated.GET("/rooms/:roomId/messages", roomHandler.GetMessages)
			authenticated.GET("/notifications", notificationHandler.GetPending)
			authenticated.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		}
	}

	internal := r.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.InternalAPIKey))
	{
		internal.POST("/users/:userId/events", internalHandler.PushToUser)
		internal.POST("/users/:userId/disconnect", internalHandler.Disconnect)
		internal.POST("/rooms/:roomId/events", internalHandler.PushToRoom)
	}

	return r
}
