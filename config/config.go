package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the node's startup settings.
type Config struct {
	RPCAddress     string   `toml:"RPCAddress"`
	GatewayAddress string   `toml:"GatewayAddress"`
	DataDir        string   `toml:"DataDir"`
	NetworkName    string   `toml:"NetworkName"`
	Owner          string   `toml:"Owner"`
	LogPath        string   `toml:"LogPath"`
	PausedModules  []string `toml:"PausedModules"`
}

const (
	defaultRPCAddress     = "127.0.0.1:8645"
	defaultGatewayAddress = "127.0.0.1:8080"
	defaultDataDir        = "./griddata"
	defaultNetworkName    = "grid-local"
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.GatewayAddress) == "" {
		cfg.GatewayAddress = defaultGatewayAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) != "" {
		if _, err := ParseAddress(c.Owner); err != nil {
			return fmt.Errorf("config: invalid Owner: %w", err)
		}
	}
	return nil
}

// OwnerAddress parses the configured contract owner. A zero address is
// returned when no owner is configured.
func (c *Config) OwnerAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Owner) == "" {
		return [20]byte{}, nil
	}
	return ParseAddress(c.Owner)
}

// ParseAddress decodes a 20-byte hex address with optional 0x prefix.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	copy(addr[:], decoded)
	return addr, nil
}
