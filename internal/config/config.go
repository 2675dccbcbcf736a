// Package config provides configuration management for the arena runner
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the runner
type Config struct {
	Service ServiceConfig
	Signer  SignerConfig
	Journal JournalConfig
}

// ServiceConfig holds match service settings
type ServiceConfig struct {
	BaseURL      string
	Kind         string
	Timeout      time.Duration
	PollInterval time.Duration
	MatchTimeout time.Duration
	RetryCount   int
	RequestRate  float64
}

// SignerConfig holds key material and proof verification settings
type SignerConfig struct {
	Key          string
	SharedSecret string
}

// JournalConfig holds journal database settings; an empty DSN disables
// the journal
type JournalConfig struct {
	Driver string
	DSN    string
}

// Load loads configuration from environment with defaults
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:      getEnv("ARENA_BASE_URL", "http://localhost:8080"),
			Kind:         getEnv("ARENA_SESSION_KIND", "headsup-100"),
			Timeout:      30 * time.Second,
			PollInterval: 2 * time.Second,
			MatchTimeout: 5 * time.Minute,
			RetryCount:   3,
			RequestRate:  getEnvFloat("ARENA_REQUEST_RATE", 0),
		},
		Signer: SignerConfig{
			Key:          getEnv("ARENA_SIGNER_KEY", ""),
			SharedSecret: getEnv("ARENA_SHARED_SECRET", ""),
		},
		Journal: JournalConfig{
			Driver: getEnv("ARENA_JOURNAL_DRIVER", "postgres"),
			DSN:    getEnv("ARENA_JOURNAL_DSN", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
