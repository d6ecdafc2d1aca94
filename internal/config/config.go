package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"barbershop/internal/model"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken        string           `yaml:"bot_token"`
		Debug           bool             `yaml:"debug"`
		StaffChats      map[string]int64 `yaml:"staff_chats"` // staff id -> chat id
		AgendaEnabled   bool             `yaml:"agenda_enabled"`
		AgendaTime      string           `yaml:"agenda_time"`       // "20:00" shop time
		AgendaDaysAhead int              `yaml:"agenda_days_ahead"` // 0 = same day
		MessagesPerSec  float64          `yaml:"messages_per_sec"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Address        string  `yaml:"address"`
		APIKey         string  `yaml:"api_key"`
		BookingRateRPS float64 `yaml:"booking_rate_rps"`
		BookingBurst   int     `yaml:"booking_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Shop struct {
		ConfigPath           string `yaml:"config_path"`
		Timezone             string `yaml:"timezone"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"shop"`

	Reservation struct {
		MaxRetries    int   `yaml:"max_retries"`
		RetryDelaysMS []int `yaml:"retry_delays_ms"`
	} `yaml:"reservation"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := model.ParseTimeOfDay(cfg.Telegram.AgendaTime); err != nil {
		return nil, fmt.Errorf("telegram.agenda_time: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/barbershop.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.API.BookingRateRPS <= 0 {
		c.API.BookingRateRPS = 1
	}
	if c.API.BookingBurst <= 0 {
		c.API.BookingBurst = 5
	}
	if c.Shop.ConfigPath == "" {
		c.Shop.ConfigPath = "configs/shop.yaml"
	}
	if c.Shop.Timezone == "" {
		c.Shop.Timezone = "UTC"
	}
	if c.Telegram.AgendaTime == "" {
		c.Telegram.AgendaTime = "20:00"
	}
	if c.Telegram.AgendaDaysAhead < 0 {
		c.Telegram.AgendaDaysAhead = 0
	}
	if c.Telegram.MessagesPerSec <= 0 {
		c.Telegram.MessagesPerSec = 20
	}
	if c.Reservation.MaxRetries <= 0 {
		c.Reservation.MaxRetries = 3
	}
	if len(c.Reservation.RetryDelaysMS) == 0 {
		c.Reservation.RetryDelaysMS = []int{50, 150, 400}
	}
}

// Location returns the shop timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Shop.Timezone)
	if err != nil {
		return nil, fmt.Errorf("shop.timezone %q: %w", c.Shop.Timezone, err)
	}
	return loc, nil
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) ShopWatchInterval() time.Duration {
	if c.Shop.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Shop.WatchIntervalSeconds) * time.Second
}

// RetryDelays returns the backoff schedule for transient storage errors.
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.Reservation.RetryDelaysMS))
	for i, ms := range c.Reservation.RetryDelaysMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}
