// internal/database/postgres.go
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realtime-service/internal/config"
	"realtime-service/internal/model"
)

var (
	db    *gorm.DB
	dbMux sync.RWMutex
)

// InitPostgres connects, configures the pool and migrates.
// A failure only returns the error; the service keeps running without persistence.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	logLevel := logger.Silent
	if cfg.Server.Env == "dev" || cfg.Server.Env == "development" {
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		conn    *gorm.DB
		openErr error
	)
	done := make(chan struct{})
	go func() {
		conn, openErr = gorm.Open(postgres.Open(cfg.Database.URL), gormConfig)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("database connection timeout")
	case <-done:
		if openErr != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", openErr)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	SetDB(conn)
	return conn, nil
}

// InitPostgresAsync keeps retrying in the background until a connection succeeds.
func InitPostgresAsync(cfg *config.Config, retryInterval time.Duration, log *zap.Logger) {
	go func() {
		for {
			if IsDBReady() {
				return
			}
			if _, err := InitPostgres(cfg); err != nil {
				log.Warn("DB connection failed, retrying",
					zap.Duration("retryInterval", retryInterval),
					zap.Error(err))
				time.Sleep(retryInterval)
				continue
			}
			log.Info("PostgreSQL connected (async)")
			return
		}
	}()
}

// AutoMigrate creates the realtime tables
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&model.Message{},
		&model.Notification{},
	)
}

// GetDB returns the database instance (nil if not connected)
func GetDB() *gorm.DB {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db
}

func SetDB(conn *gorm.DB) {
	dbMux.Lock()
	defer dbMux.Unlock()
	db = conn
}

// IsDBReady returns whether DB is connected
func IsDBReady() bool {
	return GetDB() != nil
}
