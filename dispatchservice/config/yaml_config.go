package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	Key      string `yaml:"key"`
}

type YamlPushConfig struct {
	Transport string `yaml:"transport"`
	Endpoint  string `yaml:"endpoint"`
	Timeout   string `yaml:"timeout"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID          string          `yaml:"project_id"`
	ListenAddr         string          `yaml:"listen_addr"`
	Store              string          `yaml:"store"`
	CredentialsFile    string          `yaml:"credentials_file"`
	EventsTopicID      string          `yaml:"events_topic_id"`
	IdentityServiceURL string          `yaml:"identity_service_url"`
	PushConfig         YamlPushConfig  `yaml:"push"`
	CorsConfig         YamlCorsConfig  `yaml:"cors"`
	RedisConfig        YamlRedisConfig `yaml:"redis"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var timeout time.Duration
	if baseCfg.PushConfig.Timeout != "" {
		d, err := time.ParseDuration(baseCfg.PushConfig.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid push.timeout %q: %w", baseCfg.PushConfig.Timeout, err)
		}
		timeout = d
	}

	cfg := &Config{
		ProjectID:          baseCfg.ProjectID,
		ListenAddr:         baseCfg.ListenAddr,
		Store:              baseCfg.Store,
		CredentialsFile:    baseCfg.CredentialsFile,
		EventsTopicID:      baseCfg.EventsTopicID,
		IdentityServiceURL: baseCfg.IdentityServiceURL,
		Push: PushConfig{
			Transport: baseCfg.PushConfig.Transport,
			Endpoint:  baseCfg.PushConfig.Endpoint,
			Timeout:   timeout,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			Key:      baseCfg.RedisConfig.Key,
		},
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"push_transport", cfg.Push.Transport,
	)

	return cfg, nil
}
