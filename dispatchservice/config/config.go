package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	TransportHTTP = "http"
	TransportSDK  = "sdk"

	defaultPushTimeout = 10 * time.Second
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// Key under which the shared access token is cached.
	Key string
}

type PushConfig struct {
	// Transport selects the raw HTTP v1 client or the Firebase Admin SDK.
	Transport string
	// Endpoint overrides the messages:send URL; empty means the project's default.
	Endpoint string
	Timeout  time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID       string
	ListenAddr      string
	Store           string
	CredentialsFile string

	Push  PushConfig
	Redis RedisConfig

	// EventsTopicID is optional; dispatch events are not published without it.
	EventsTopicID string

	// IdentityServiceURL enables JWT auth for the inbox routes. Empty disables them.
	IdentityServiceURL string
	CorsConfig         middleware.CorsConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("STORE"); val != "" {
		logger.Debug("Overriding config value", "key", "STORE", "source", "env")
		cfg.Store = strings.ToLower(val)
	}
	if val := os.Getenv("CREDENTIALS_FILE"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIALS_FILE", "source", "env")
		cfg.CredentialsFile = val
	}

	// Push Overrides
	if val := os.Getenv("PUSH_TRANSPORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PUSH_TRANSPORT", "source", "env")
		cfg.Push.Transport = strings.ToLower(val)
	}
	if val := os.Getenv("FCM_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_ENDPOINT", "source", "env")
		cfg.Push.Endpoint = val
	}
	if val := os.Getenv("PUSH_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_TIMEOUT %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "PUSH_TIMEOUT", "source", "env")
		cfg.Push.Timeout = d
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	if val := os.Getenv("EVENTS_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "EVENTS_TOPIC_ID", "source", "env")
		cfg.EventsTopicID = val
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Store == "" {
		cfg.Store = StoreFirestore
	}
	if cfg.Store != StoreFirestore && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", cfg.Store, StoreFirestore, StoreMemory)
	}
	if cfg.Push.Transport == "" {
		cfg.Push.Transport = TransportHTTP
	}
	if cfg.Push.Transport != TransportHTTP && cfg.Push.Transport != TransportSDK {
		return nil, fmt.Errorf("unknown push transport %q (want %s or %s)", cfg.Push.Transport, TransportHTTP, TransportSDK)
	}
	if cfg.Push.Timeout <= 0 {
		cfg.Push.Timeout = defaultPushTimeout
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis is enabled but no address is set (REDIS_ADDR)")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
