// Package config loads the scheduler's runtime configuration from YAML
// with environment-variable overrides, matching
// itsddvn-goclaw/internal/config's yaml.v3-plus-env-override convention
// (hotreload.go, kept from the teacher, calls Load by this same signature).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every DSN/tunable the engine's collaborators need to start.
type Config struct {
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Scheduler struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		LeaseTTL     time.Duration `yaml:"lease_ttl"`
		DefaultZone  string        `yaml:"default_zone"`

		// BrokerRPS/BrokerBurst pace the broker adapter's Submit/Poll
		// calls within one tick (spec.md §8's rate-limited broker
		// wiring). BrokerRPS <= 0 disables limiting.
		BrokerRPS   float64 `yaml:"broker_rps"`
		BrokerBurst int     `yaml:"broker_burst"`

		// JobCacheSize bounds the in-memory Job-row cache (spec.md §8).
		JobCacheSize int `yaml:"job_cache_size"`
	} `yaml:"scheduler"`
}

// Load reads path as YAML into a Config, then applies a fixed set of
// environment-variable overrides (the same DSN/secret-override pattern the
// teacher's own config package uses for deployment-time secrets).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Scheduler.PollInterval = 25 * time.Second
	cfg.Scheduler.LeaseTTL = 20 * time.Second
	cfg.Scheduler.DefaultZone = "UTC"
	cfg.Scheduler.BrokerRPS = 50
	cfg.Scheduler.BrokerBurst = 10
	cfg.Scheduler.JobCacheSize = 256
	cfg.Redis.DB = 0
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHEDULER_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("SCHEDULER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SCHEDULER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SCHEDULER_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SCHEDULER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.PollInterval = d
		}
	}
	if v := os.Getenv("SCHEDULER_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}
