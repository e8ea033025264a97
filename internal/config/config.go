package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Database      DatabaseConfig  `yaml:"database"`
	Auth          AuthConfig      `yaml:"auth"`
	Tailscale     TailscaleConfig `yaml:"tailscale"`
	HeartRate     HeartRateConfig `yaml:"heart_rate"`
	Feedback      FeedbackConfig  `yaml:"feedback"`
	Sessions      SessionsConfig  `yaml:"sessions"`
	ExercisesFile string          `yaml:"exercises_file"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// HeartRateConfig points at the wearable sensor bridge. An empty URL disables polling.
type HeartRateConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	LimitBPM int           `yaml:"limit_bpm"`
}

// FeedbackConfig holds per-category cooldowns for spoken feedback.
type FeedbackConfig struct {
	Rep             time.Duration `yaml:"rep"`
	Warning         time.Duration `yaml:"warning"`
	Motivation      time.Duration `yaml:"motivation"`
	Default         time.Duration `yaml:"default"`
	MotivationEvery int           `yaml:"motivation_every"`
}

type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPCOACH_ and underscore-separated paths:
//
//	REPCOACH_SERVER_HOST, REPCOACH_SERVER_PORT,
//	REPCOACH_DB_HOST, REPCOACH_DB_PORT, REPCOACH_DB_NAME,
//	REPCOACH_DB_USER, REPCOACH_DB_PASSWORD, REPCOACH_DB_SSLMODE,
//	REPCOACH_AUTH_API_KEY, REPCOACH_TAILSCALE_ENABLED,
//	REPCOACH_HEART_RATE_URL, REPCOACH_HEART_RATE_LIMIT_BPM,
//	REPCOACH_EXERCISES_FILE
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPCOACH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPCOACH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPCOACH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPCOACH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPCOACH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPCOACH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPCOACH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPCOACH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPCOACH_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPCOACH_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("REPCOACH_HEART_RATE_URL"); v != "" {
		cfg.HeartRate.URL = v
	}
	if v := os.Getenv("REPCOACH_HEART_RATE_LIMIT_BPM"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.HeartRate.LimitBPM = limit
		}
	}
	if v := os.Getenv("REPCOACH_EXERCISES_FILE"); v != "" {
		cfg.ExercisesFile = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "repcoach"
	}
	if cfg.HeartRate.Interval == 0 {
		cfg.HeartRate.Interval = time.Second
	}
	if cfg.HeartRate.Timeout == 0 {
		cfg.HeartRate.Timeout = 500 * time.Millisecond
	}
	if cfg.HeartRate.LimitBPM == 0 {
		cfg.HeartRate.LimitBPM = 120
	}
	if cfg.Feedback.Warning == 0 {
		cfg.Feedback.Warning = 3 * time.Second
	}
	if cfg.Feedback.Motivation == 0 {
		cfg.Feedback.Motivation = 15 * time.Second
	}
	if cfg.Feedback.Default == 0 {
		cfg.Feedback.Default = 2 * time.Second
	}
	if cfg.Feedback.MotivationEvery == 0 {
		cfg.Feedback.MotivationEvery = 5
	}
	if cfg.Sessions.IdleTimeout == 0 {
		cfg.Sessions.IdleTimeout = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.HeartRate.Interval < 0 || c.HeartRate.Timeout < 0 {
		return fmt.Errorf("heart_rate.interval and heart_rate.timeout must not be negative")
	}
	if c.HeartRate.LimitBPM < 0 {
		return fmt.Errorf("heart_rate.limit_bpm must not be negative")
	}
	if c.Feedback.Rep < 0 || c.Feedback.Warning < 0 || c.Feedback.Motivation < 0 || c.Feedback.Default < 0 {
		return fmt.Errorf("feedback cooldowns must not be negative")
	}
	if c.Feedback.MotivationEvery < 0 {
		return fmt.Errorf("feedback.motivation_every must not be negative")
	}
	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout must not be negative")
	}
	return nil
}
