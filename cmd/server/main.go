package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"realtime-service/internal/broadcast"
	"realtime-service/internal/client"
	"realtime-service/internal/clock"
	"realtime-service/internal/config"
	"realtime-service/internal/database"
	"realtime-service/internal/job"
	"realtime-service/internal/metrics"
	"realtime-service/internal/ratelimit"
	"realtime-service/internal/repository"
	"realtime-service/internal/router"
	"realtime-service/internal/service"
	"realtime-service/internal/websocket"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting Realtime Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("auth_service_url", cfg.Auth.ServiceURL),
		zap.Duration("presence_grace", cfg.Realtime.PresenceGrace))

	// Persistence is optional; the coordinator runs without it.
	requireDB := cfg.Database.URL != ""
	if requireDB {
		if _, err := database.InitPostgres(cfg); err != nil {
			logger.Warn("Failed to connect to PostgreSQL on startup, will retry in background", zap.Error(err))
			database.InitPostgresAsync(cfg, 5*time.Second, logger)
		} else {
			logger.Info("PostgreSQL connected")
		}
	} else {
		logger.Warn("DATABASE_URL not set, messages will not be persisted")
	}

	redisClient, err := database.InitRedis(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, running single-instance fan-out", zap.Error(err))
		redisClient = nil
	}

	m := metrics.New(logger)
	clk := clock.Real{}

	// Broadcaster: in-process, relayed over Redis pub/sub when configured
	local := broadcast.NewLocal(logger)
	var (
		broadcaster broadcast.Broadcaster = local
		relay       *broadcast.Redis
		redisHealth redis.UniversalClient
	)
	if redisClient != nil {
		redisHealth = redisClient
		relay = broadcast.NewRedis(local, redisClient, cfg.Redis.Channel, logger)
		broadcaster = relay
		logger.Info("Redis relay enabled", zap.String("channel", cfg.Redis.Channel))
	}

	messageRepo := repository.NewMessageRepository(nil)
	notificationRepo := repository.NewNotificationRepository(nil)

	rt := cfg.Realtime
	rooms := service.NewRoomService(repository.NewRoomRepository(), broadcaster, clk, m, logger)
	presence := service.NewPresenceService(repository.NewPresenceRepository(), rooms, broadcaster, clk, m, logger, rt.PresenceGrace)
	typing := service.NewTypingService(repository.NewTypingRepository(), broadcaster, clk, logger, rt.TypingTimeout)
	messages := service.NewMessageService(
		rooms,
		repository.NewDeliveryRepository(),
		messageRepo,
		notificationRepo,
		presence,
		typing,
		broadcaster,
		clk,
		m,
		logger,
		service.MessageOptions{MaxLength: rt.MaxMessageLength, PersistTimeout: rt.PersistTimeout},
	)

	verifier := client.NewAuthClient(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, 5*time.Second, logger)
	limiter := ratelimit.NewLimiter(clk)

	hub, err := websocket.NewHub(websocket.Deps{
		Verifier:    verifier,
		Limiter:     limiter,
		Local:       local,
		Broadcaster: broadcaster,
		Presence:    presence,
		Rooms:       rooms,
		Typing:      typing,
		Messages:    messages,
		Pending:     notificationRepo,
		Clock:       clk,
		Metrics:     m,
	}, websocket.Options{
		ConnectionRule: rt.ConnectionRule,
		MessageRule:    rt.MessageRule,
		SendBufferSize: rt.SendBufferSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create websocket hub", zap.Error(err))
	}

	cleanup := job.NewCleanupJob(typing, messages, presence, limiter, rooms, m, logger, job.Options{
		TypingSweepEvery:   rt.TypingSweepEvery,
		TypingStaleAfter:   rt.TypingStaleAfter,
		DeliverySweepEvery: rt.DeliverySweepEvery,
		DeliveryRetention:  rt.DeliveryRetention,
		DepartureRetention: rt.PresenceGrace * 2,
		LimiterIdle:        limiterIdle(rt.ConnectionRule, rt.MessageRule),
	})
	if err := cleanup.Start(); err != nil {
		logger.Fatal("Failed to start cleanup job", zap.Error(err))
	}

	r := router.Setup(router.Config{
		Logger:         logger,
		Metrics:        m,
		BasePath:       cfg.Server.BasePath,
		CORSOrigins:    cfg.Server.CORSOrigins,
		InternalAPIKey: cfg.Auth.InternalAPIKey,
		DB:             database.GetDB,
		RequireDB:      requireDB,
		Redis:          redisHealth,
		Verifier:       verifier,
		Hub:            hub,
		Presence:       presence,
		Rooms:          rooms,
		Messages:       messageRepo,
		Notifications:  notificationRepo,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Realtime Service started successfully", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			for {
				err := relay.Run(gctx)
				if gctx.Err() != nil {
					return nil
				}
				logger.Warn("Redis relay subscription ended, resubscribing", zap.Error(err))
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		cleanup.Stop(shutdownCtx)
		hub.Shutdown("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		messages.Wait()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Realtime Service stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server exited gracefully")
}

// limiterIdle keeps a rate-limit window at least as long as it can matter.
func limiterIdle(rules ...ratelimit.Rule) time.Duration {
	var idle time.Duration
	for _, rule := range rules {
		if d := rule.Window + rule.BlockDuration; d > idle {
			idle = d
		}
	}
	return idle
}

// initLogger initializes the zap logger with the specified level
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
