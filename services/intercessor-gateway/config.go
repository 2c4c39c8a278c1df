package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// APIKeyConfig describes a single API key + secret pair accepted by the gateway.
type APIKeyConfig struct {
	Key    string `toml:"Key"`
	Secret string `toml:"Secret"`
}

// Config captures runtime configuration for the gateway service.
type Config struct {
	ListenAddress    string         `toml:"ListenAddress"`
	Environment      string         `toml:"Environment"`
	StorageBackend   string         `toml:"StorageBackend"`
	DataDir          string         `toml:"DataDir"`
	AuthorityAddress string         `toml:"AuthorityAddress"`
	Assets           []string       `toml:"Assets"`
	TimestampSkew    string         `toml:"TimestampSkew"`
	APIKeys          []APIKeyConfig `toml:"APIKeys"`
}

const (
	storageBackendMemory  = "memory"
	storageBackendLevelDB = "leveldb"
)

// LoadConfig builds configuration from an optional TOML file plus environment
// overrides. The path may be empty, in which case defaults and environment
// variables alone apply.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress:  ":8082",
		Environment:    "dev",
		StorageBackend: storageBackendMemory,
		DataDir:        "intercessor-gateway-data",
		TimestampSkew:  "2m",
	}
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if listen := strings.TrimSpace(os.Getenv("INTERCESSOR_GATEWAY_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
	if env := strings.TrimSpace(os.Getenv("INTERCESSOR_GATEWAY_ENV")); env != "" {
		cfg.Environment = env
	}
	if backend := strings.TrimSpace(os.Getenv("INTERCESSOR_GATEWAY_STORAGE")); backend != "" {
		cfg.StorageBackend = backend
	}
	if dir := strings.TrimSpace(os.Getenv("INTERCESSOR_GATEWAY_DATA_DIR")); dir != "" {
		cfg.DataDir = dir
	}
	if authority := strings.TrimSpace(os.Getenv("INTERCESSOR_GATEWAY_AUTHORITY")); authority != "" {
		cfg.AuthorityAddress = authority
	}
	switch cfg.StorageBackend {
	case storageBackendMemory, storageBackendLevelDB:
	default:
		return Config{}, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
	if strings.TrimSpace(cfg.AuthorityAddress) == "" {
		return Config{}, errors.New("AuthorityAddress is required")
	}
	if len(cfg.APIKeys) == 0 {
		return Config{}, errors.New("at least one API key is required")
	}
	for _, key := range cfg.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return Config{}, errors.New("API keys require both key and secret")
		}
	}
	if _, err := cfg.Skew(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Skew parses the configured timestamp tolerance.
func (c Config) Skew() (time.Duration, error) {
	skew, err := time.ParseDuration(c.TimestampSkew)
	if err != nil {
		return 0, fmt.Errorf("parse TimestampSkew: %w", err)
	}
	if skew <= 0 {
		return 0, errors.New("TimestampSkew must be positive")
	}
	return skew, nil
}
