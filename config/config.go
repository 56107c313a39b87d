package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Env        string           `yaml:"env"`
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// LogConfig selects the minimum log level (debug, info, warn, error).
type LogConfig struct {
	Level string `yaml:"level"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	RateLimitPerSec    float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds    int      `yaml:"cache_ttl_seconds"`
	GateRefreshSeconds int      `yaml:"gate_refresh_seconds"`
	AllowOrigins       []string `yaml:"allow_origins"`
	CookieSecure       bool     `yaml:"cookie_secure"`

	CacheTTL       time.Duration `yaml:"-"`
	GateRefreshTTL time.Duration `yaml:"-"`
}

// BackendConfig describes the clinic REST backend the portal talks to.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	HTTPProxy      string `yaml:"http_proxy"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Timezone       string `yaml:"timezone"`

	Timeout time.Duration `yaml:"-"`
}

// Location loads the clinic timezone, falling back to UTC when it is unknown.
func (b BackendConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendarConfig holds the month cache settings and the widest range one
// query may cover.
type CalendarConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	MaxRangeMonths  int `yaml:"max_range_months"`

	CacheTTL time.Duration `yaml:"-"`
}

// SchedulingConfig holds slot batch behaviour.
type SchedulingConfig struct {
	RollbackPartialBatches bool `yaml:"rollback_partial_batches"`
}

// SessionConfig controls portal session lifetime and the sweeper loop.
type SessionConfig struct {
	TTLMinutes           int    `yaml:"ttl_minutes"`
	RefreshWindowMinutes int    `yaml:"refresh_window_minutes"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	CookieName           string `yaml:"cookie_name"`

	TTL           time.Duration `yaml:"-"`
	RefreshWindow time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// Load reads the configuration from the given path. A .env file in the working
// directory is loaded first so it can provide CONFIG_PATH and secrets.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}

	return &cfg, nil
}

// LoadDotEnv loads an optional .env file. A missing file is not an error.
func LoadDotEnv(paths ...string) bool {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...) == nil
}

// Path returns the configuration path from CONFIG_PATH or the local default.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/config.yaml"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTAL_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("PORTAL_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PORTAL_VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
	if v := os.Getenv("PORTAL_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PORTAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.GateRefreshSeconds <= 0 || cfg.Server.GateRefreshSeconds > 60 {
		cfg.Server.GateRefreshSeconds = 60
	}
	cfg.Server.GateRefreshTTL = time.Duration(cfg.Server.GateRefreshSeconds) * time.Second

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	if cfg.Backend.Timezone == "" {
		cfg.Backend.Timezone = "America/Sao_Paulo"
	}

	if cfg.Calendar.CacheTTLSeconds <= 0 {
		cfg.Calendar.CacheTTLSeconds = 300
	}
	cfg.Calendar.CacheTTL = time.Duration(cfg.Calendar.CacheTTLSeconds) * time.Second
	if cfg.Calendar.MaxRangeMonths <= 0 {
		cfg.Calendar.MaxRangeMonths = 3
	}

	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 12 * 60
	}
	cfg.Session.TTL = time.Duration(cfg.Session.TTLMinutes) * time.Minute
	if cfg.Session.RefreshWindowMinutes <= 0 {
		cfg.Session.RefreshWindowMinutes = 15
	}
	cfg.Session.RefreshWindow = time.Duration(cfg.Session.RefreshWindowMinutes) * time.Minute
	if cfg.Session.SweepIntervalSeconds <= 0 {
		cfg.Session.SweepIntervalSeconds = 300
	}
	cfg.Session.SweepInterval = time.Duration(cfg.Session.SweepIntervalSeconds) * time.Second
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "portal_session"
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "sqlite://portal.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
}
