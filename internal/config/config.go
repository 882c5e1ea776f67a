package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymeConfig struct {
	MerchantID string `yaml:"merchant_id"`
	SecretKey  string `yaml:"secret_key"`
	TestMode   bool   `yaml:"test_mode"`
	Enabled    bool   `yaml:"enabled"`
}

type ClickConfig struct {
	MerchantID string `yaml:"merchant_id"`
	ServiceID  string `yaml:"service_id"`
	SecretKey  string `yaml:"secret_key"`
	TestMode   bool   `yaml:"test_mode"`
	Enabled    bool   `yaml:"enabled"`
}

type PaymentConfig struct {
	Payme PaymeConfig `yaml:"payme"`
	Click ClickConfig `yaml:"click"`
	Stars struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"stars"`
}

type BillingConfig struct {
	RejectOverlap bool          `yaml:"reject_overlap"` // refuse a new subscription while one is active
	SweepInterval time.Duration `yaml:"sweep_interval"`
	NotifyDays    int           `yaml:"notify_days"` // renewal reminder window
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Billing  BillingConfig  `yaml:"billing"`
	HTTP     HTTPConfig     `yaml:"http"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Billing.SweepInterval <= 0 {
		cfg.Billing.SweepInterval = 24 * time.Hour
	}
	if cfg.Billing.NotifyDays <= 0 {
		cfg.Billing.NotifyDays = 3
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Bot.Username == "" {
		return nil, errors.New("bot.username is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.Payme.Enabled && cfg.Payment.Payme.SecretKey == "" {
		return nil, errors.New("payment.payme.secret_key is required when payme is enabled")
	}
	if cfg.Payment.Click.Enabled && cfg.Payment.Click.SecretKey == "" {
		return nil, errors.New("payment.click.secret_key is required when click is enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
