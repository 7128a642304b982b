package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NetworkType != Mainnet {
		t.Errorf("default network = %s, want mainnet", cfg.NetworkType)
	}
	if len(cfg.Routers) != 1 || cfg.Routers[0].Variant != "standard" {
		t.Errorf("default routers = %+v", cfg.Routers)
	}
	if cfg.RPC.Timeout != 30*time.Second {
		t.Errorf("default RPC timeout = %s", cfg.RPC.Timeout)
	}
	if cfg.Sync.IterationInterval != 60*time.Second {
		t.Errorf("default iteration interval = %s", cfg.Sync.IterationInterval)
	}
	if cfg.Sync.PriceSyncMinInterval != 300*time.Second {
		t.Errorf("default price sync min interval = %s", cfg.Sync.PriceSyncMinInterval)
	}
	if cfg.Sync.PriceSyncGracePeriod != 900*time.Second {
		t.Errorf("default price sync grace period = %s", cfg.Sync.PriceSyncGracePeriod)
	}
	if cfg.Sync.TimestampRetryInterval != 5*time.Second {
		t.Errorf("default timestamp retry interval = %s", cfg.Sync.TimestampRetryInterval)
	}
}

func TestIsTestnet(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IsTestnet() {
		t.Error("default config should not be testnet")
	}
	cfg.NetworkType = Testnet
	if !cfg.IsTestnet() {
		t.Error("testnet config should report testnet")
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("data dir = %s, want %s", cfg.Storage.DataDir, tmpDir)
	}

	// The file should now exist and parse back.
	if _, err := os.Stat(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	reloaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if reloaded.RPC.BaseURL != cfg.RPC.BaseURL {
		t.Errorf("reloaded RPC base URL = %s, want %s", reloaded.RPC.BaseURL, cfg.RPC.BaseURL)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Routers = []RouterConfig{
		{Variant: "standard", LauncherID: "aa00000000000000000000000000000000000000000000000000000000000000"},
		{Variant: "rcat", LauncherID: "bb00000000000000000000000000000000000000000000000000000000000000"},
	}
	cfg.RPC.BaseURL = "https://node.example:8555"
	cfg.RPC.APIKey = "secret"
	cfg.Sync.IterationInterval = 30 * time.Second

	path := filepath.Join(tmpDir, ConfigFileName)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if len(loaded.Routers) != 2 || loaded.Routers[1].Variant != "rcat" {
		t.Errorf("routers = %+v", loaded.Routers)
	}
	if loaded.RPC.BaseURL != "https://node.example:8555" || loaded.RPC.APIKey != "secret" {
		t.Errorf("RPC config = %+v", loaded.RPC)
	}
	if loaded.Sync.IterationInterval != 30*time.Second {
		t.Errorf("iteration interval = %s, want 30s", loaded.Sync.IterationInterval)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")

	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}

	if expandPath("/abs/path") != "/abs/path" {
		t.Error("absolute paths should pass through unchanged")
	}
}
