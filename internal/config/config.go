// Package config provides centralized configuration for the indexer.
// All router/RPC/price/metadata parameters MUST be defined here; no
// hardcoded values should exist elsewhere in the codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType represents mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// RouterConfig identifies one router variant to track (e.g. the base
// router and the restricted-CAT router share the same algorithm but are
// distinct on-chain singletons).
type RouterConfig struct {
	// Variant is a short tag distinguishing this router (e.g. "standard", "rcat").
	Variant string `yaml:"variant"`

	// LauncherID is the hex-encoded 32-byte singleton launcher id.
	LauncherID string `yaml:"launcher_id"`
}

// RPCConfig holds full-node RPC connection settings.
type RPCConfig struct {
	// BaseURL is the full node's RPC base URL.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the RPC proxy, if required.
	APIKey string `yaml:"api_key"`

	// Timeout bounds every individual RPC call.
	Timeout time.Duration `yaml:"timeout"`
}

// MetadataConfig holds the asset-metadata HTTP service settings.
type MetadataConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PriceConfig holds the USD/XCH historical price feed settings.
type PriceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory containing the sqlite database file.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SyncConfig holds the orchestrator's scheduling parameters.
type SyncConfig struct {
	// IterationInterval is how long the orchestrator sleeps between passes.
	IterationInterval time.Duration `yaml:"iteration_interval"`

	// FailureBackoff is how long the orchestrator waits after an aborted iteration.
	FailureBackoff time.Duration `yaml:"failure_backoff"`

	// PriceSyncMinInterval is the minimum time between price-sync attempts.
	PriceSyncMinInterval time.Duration `yaml:"price_sync_min_interval"`

	// PriceSyncGracePeriod is how long after a bucket's end before syncing it.
	PriceSyncGracePeriod time.Duration `yaml:"price_sync_grace_period"`

	// TimestampRetryInterval bounds each sleep while waiting for a block timestamp.
	TimestampRetryInterval time.Duration `yaml:"timestamp_retry_interval"`
}

// Config holds all configuration for the indexer.
type Config struct {
	NetworkType NetworkType    `yaml:"network_type"`
	Routers     []RouterConfig `yaml:"routers"`
	RPC         RPCConfig      `yaml:"rpc"`
	Metadata    MetadataConfig `yaml:"metadata"`
	Price       PriceConfig    `yaml:"price"`
	Storage     StorageConfig  `yaml:"storage"`
	Logging     LoggingConfig  `yaml:"logging"`
	Sync        SyncConfig     `yaml:"sync"`
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == Testnet
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: Mainnet,
		Routers: []RouterConfig{
			{Variant: "standard", LauncherID: ""},
		},
		RPC: RPCConfig{
			BaseURL: "https://localhost:8555",
			Timeout: 30 * time.Second,
		},
		Metadata: MetadataConfig{
			BaseURL: "https://api.tibetswap.io/assets",
			Timeout: 30 * time.Second,
		},
		Price: PriceConfig{
			BaseURL: "https://min-api.cryptocompare.com/data/v2/histohour",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "~/.tibet-indexer",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Sync: SyncConfig{
			IterationInterval:      60 * time.Second,
			FailureBackoff:         60 * time.Second,
			PriceSyncMinInterval:   300 * time.Second,
			PriceSyncGracePeriod:   900 * time.Second,
			TimestampRetryInterval: 5 * time.Second,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# TibetSwap analytics indexer configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
