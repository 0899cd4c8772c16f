package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Browser configuration
	BrowserRemoteURL string
	BrowserHeadless  bool

	// Watcher defaults (per-target overrides live in the targets file)
	PollInterval    time.Duration
	MaxPollAttempts int

	// Snapshot targets are re-fetched at this interval
	SnapshotInterval time.Duration

	// EventCooldown suppresses repeated readiness events per target+path
	EventCooldown time.Duration

	// TargetsFile is an optional YAML file of watch targets
	TargetsFile string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	pollMs, _ := strconv.Atoi(getEnv("POLL_INTERVAL_MS", "200"))
	maxAttempts, _ := strconv.Atoi(getEnv("MAX_POLL_ATTEMPTS", "50"))
	snapshotSec, _ := strconv.Atoi(getEnv("SNAPSHOT_INTERVAL_SECONDS", "60"))
	cooldownSec, _ := strconv.Atoi(getEnv("EVENT_COOLDOWN_SECONDS", "300"))

	return Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "navevents"),
		RedisStreamMaxLength: maxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		BrowserRemoteURL:     getEnv("BROWSER_REMOTE_URL", ""),
		BrowserHeadless:      getEnv("BROWSER_HEADLESS", "true") != "false",
		PollInterval:         time.Duration(pollMs) * time.Millisecond,
		MaxPollAttempts:      maxAttempts,
		SnapshotInterval:     time.Duration(snapshotSec) * time.Second,
		EventCooldown:        time.Duration(cooldownSec) * time.Second,
		TargetsFile:          getEnv("TARGETS_FILE", ""),
		Environment:          getEnv("NAVWATCHER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("redis address must not be empty")
	}
	if c.MemcacheAddr == "" {
		return fmt.Errorf("memcache address must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.MaxPollAttempts <= 0 {
		return fmt.Errorf("max poll attempts must be positive, got %d", c.MaxPollAttempts)
	}
	if c.RedisStreamMaxLength <= 0 {
		return fmt.Errorf("redis stream max length must be positive, got %d", c.RedisStreamMaxLength)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
