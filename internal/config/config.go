// Package config loads the process configuration from a YAML file with
// environment variable overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AdminConfig bootstraps the operator console account.
type AdminConfig struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TelegramID int64  `yaml:"telegram-id"`
}

// ChainConfig configures the payout gateway.
type ChainConfig struct {
	RPCEndpoint   string  `yaml:"rpc-endpoint"`
	ChainID       int64   `yaml:"chain-id"`
	TokenContract string  `yaml:"token-contract"`
	PrivateKey    string  `yaml:"private-key"`
	TokenPerPoint float64 `yaml:"token-per-point"`
	TokenDecimals int32   `yaml:"token-decimals"`
}

// Config is the full process configuration.
type Config struct {
	Listen       string        `yaml:"listen"`
	DatabaseDSN  string        `yaml:"database-dsn"`
	LogFile      string        `yaml:"log-file"`
	Debug        bool          `yaml:"debug"`
	ServiceToken string        `yaml:"service-token"`
	JWTSecret    string        `yaml:"jwt-secret"`
	TokenExpiry  time.Duration `yaml:"token-expiry"`
	Admin        AdminConfig   `yaml:"admin"`
	Chain        ChainConfig   `yaml:"chain"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:      ":8317",
		LogFile:     "logs/rewards.log",
		TokenExpiry: 24 * time.Hour,
		Chain: ChainConfig{
			TokenPerPoint: 0.001,
			TokenDecimals: 18,
		},
	}

	if strings.TrimSpace(path) != "" {
		raw, errRead := os.ReadFile(path)
		if errRead != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}

	applyEnvOverrides(cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, errors.New("config: database-dsn is required")
	}
	if strings.TrimSpace(cfg.ServiceToken) == "" {
		return nil, errors.New("config: service-token is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("config: jwt-secret is required")
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment secrets take precedence over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("SERVICE_TOKEN"); v != "" {
		cfg.ServiceToken = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
	if v := os.Getenv("CHAIN_RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("CHAIN_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
}
