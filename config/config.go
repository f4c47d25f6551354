package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nestegg/crypto"
	"nestegg/native/ledger"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	MetricsAddress   string `toml:"MetricsAddress"`
	DataDir          string `toml:"DataDir"`
	ServiceName      string `toml:"ServiceName"`
	Environment      string `toml:"Environment"`
	RPCAuthTokenEnv  string `toml:"RPCAuthTokenEnv"`
	TreasuryAddress  string `toml:"TreasuryAddress"`
	TreasuryFeeBps   uint32 `toml:"TreasuryFeeBps"`
	GlobalMaxSaveBps uint32 `toml:"GlobalMaxSaveBps"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuthToken resolves the RPC bearer token from the configured environment
// variable. An empty token disables write access over RPC.
func (c *Config) AuthToken() string {
	if c == nil || strings.TrimSpace(c.RPCAuthTokenEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPCAuthTokenEnv))
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./nestegg-data"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "nesteggd"
	}
	if strings.TrimSpace(cfg.RPCAuthTokenEnv) == "" {
		cfg.RPCAuthTokenEnv = "NESTEGG_RPC_TOKEN"
	}
	if cfg.GlobalMaxSaveBps == 0 {
		cfg.GlobalMaxSaveBps = 10_000
	}
}

func validate(cfg *Config) error {
	if cfg.TreasuryFeeBps > ledger.MaxTreasuryFeeBps {
		return fmt.Errorf("config: TreasuryFeeBps %d exceeds ceiling %d", cfg.TreasuryFeeBps, ledger.MaxTreasuryFeeBps)
	}
	if cfg.GlobalMaxSaveBps > 10_000 {
		return fmt.Errorf("config: GlobalMaxSaveBps %d exceeds 10000", cfg.GlobalMaxSaveBps)
	}
	if trimmed := strings.TrimSpace(cfg.TreasuryAddress); trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return fmt.Errorf("config: invalid TreasuryAddress: %w", err)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
