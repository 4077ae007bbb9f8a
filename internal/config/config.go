package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"realtime-service/internal/ratelimit"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	CORSOrigins     string        `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type AuthConfig struct {
	ServiceURL     string `yaml:"service_url"`
	SecretKey      string `yaml:"secret_key"`
	InternalAPIKey string `yaml:"internal_api_key"`
}

// RealtimeConfig holds the coordinator tunables.
type RealtimeConfig struct {
	PresenceGrace      time.Duration  `yaml:"presence_grace"`
	TypingTimeout      time.Duration  `yaml:"typing_timeout"`
	TypingStaleAfter   time.Duration  `yaml:"typing_stale_after"`
	TypingSweepEvery   time.Duration  `yaml:"typing_sweep_every"`
	DeliveryRetention  time.Duration  `yaml:"delivery_retention"`
	DeliverySweepEvery time.Duration  `yaml:"delivery_sweep_every"`
	MaxMessageLength   int            `yaml:"max_message_length"`
	PersistTimeout     time.Duration  `yaml:"persist_timeout"`
	SendBufferSize     int            `yaml:"send_buffer_size"`
	ConnectionRule     ratelimit.Rule `yaml:"connection_rule"`
	MessageRule        ratelimit.Rule `yaml:"message_rule"`
}

// Defaults returns the configuration used when no file or env override is present.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8002,
			BasePath:        "/api/realtime",
			Env:             "dev",
			LogLevel:        "debug",
			CORSOrigins:     "*",
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "realtime:events",
		},
		Realtime: RealtimeConfig{
			PresenceGrace:      30 * time.Second,
			TypingTimeout:      3 * time.Second,
			TypingStaleAfter:   5 * time.Second,
			TypingSweepEvery:   30 * time.Second,
			DeliveryRetention:  24 * time.Hour,
			DeliverySweepEvery: 5 * time.Minute,
			MaxMessageLength:   4000,
			PersistTimeout:     5 * time.Second,
			SendBufferSize:     256,
			ConnectionRule:     ratelimit.ConnectionRule,
			MessageRule:        ratelimit.MessageRule,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if authURL := os.Getenv("AUTH_SERVICE_URL"); authURL != "" {
		cfg.Auth.ServiceURL = authURL
	}
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if apiKey := os.Getenv("INTERNAL_API_KEY"); apiKey != "" {
		cfg.Auth.InternalAPIKey = apiKey
	}
	if grace := os.Getenv("PRESENCE_GRACE"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil {
			cfg.Realtime.PresenceGrace = d
		}
	}
	if timeout := os.Getenv("TYPING_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Realtime.TypingTimeout = d
		}
	}

	return cfg, nil
}
