package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebhookConfig struct {
	// Secret is the shared HMAC-SHA256 key the OCR engine signs callbacks with.
	Secret      string `yaml:"secret"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

type EngineConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
}

type MonitorConfig struct {
	StuckWarningThreshold       int           `yaml:"stuck_warning_threshold"`
	DeadLetterCriticalThreshold int           `yaml:"dead_letter_critical_threshold"`
	StuckTimeout                time.Duration `yaml:"stuck_timeout"`
}

type WorkerConfig struct {
	DispatchWorkers int           `yaml:"dispatch_workers"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffCap      time.Duration `yaml:"backoff_cap"`
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Engine   EngineConfig   `yaml:"engine"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Worker   WorkerConfig   `yaml:"worker"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Webhook.MaxBodySize <= 0 {
		cfg.Webhook.MaxBodySize = 1 << 20 // 1 MiB
	}
	if cfg.Engine.SubmitTimeout <= 0 {
		cfg.Engine.SubmitTimeout = 30 * time.Second
	}
	if cfg.Engine.QueryTimeout <= 0 {
		cfg.Engine.QueryTimeout = 10 * time.Second
	}
	if cfg.Monitor.StuckWarningThreshold <= 0 {
		cfg.Monitor.StuckWarningThreshold = 5
	}
	if cfg.Monitor.DeadLetterCriticalThreshold <= 0 {
		cfg.Monitor.DeadLetterCriticalThreshold = 50
	}
	if cfg.Monitor.StuckTimeout <= 0 {
		cfg.Monitor.StuckTimeout = 30 * time.Second
	}
	if cfg.Worker.DispatchWorkers <= 0 {
		cfg.Worker.DispatchWorkers = 4
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.BackoffBase <= 0 {
		cfg.Worker.BackoffBase = 2 * time.Second
	}
	if cfg.Worker.BackoffCap <= 0 {
		cfg.Worker.BackoffCap = 5 * time.Minute
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Webhook.Secret == "" {
		return nil, errors.New("webhook.secret is required")
	}
	if cfg.Engine.BaseURL == "" {
		return nil, errors.New("engine.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
