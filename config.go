package ghostline

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/ghostline/default"
)

// Config represents the user's ghostline configuration.
type Config struct {
	Version int           `toml:"version" json:"version"`
	Service ServiceConfig `toml:"service" json:"service"`
}

// ServiceConfig locates the inference service and the model to complete with.
// It is replaced wholesale on every configuration change.
type ServiceConfig struct {
	Host  string `toml:"host" json:"host"`
	Model string `toml:"model" json:"model"`
}

// ConfigDir returns the config directory path.
// Resolution order: $GHOSTLINE_CONFIG_DIR > $XDG_CONFIG_HOME/ghostline > ~/.config/ghostline
func ConfigDir() string {
	if dir := os.Getenv("GHOSTLINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "ghostline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "ghostline-config")
	}
	return filepath.Join(home, ".config", "ghostline")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(string(defaults.DefaultConfigTOML), &cfg); err != nil {
		panic("ghostline: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads config from path, filling missing fields from defaults.
// A missing file yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	defaults := DefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Service.Host == "" {
		cfg.Service.Host = defaults.Service.Host
	}
	if cfg.Service.Model == "" {
		cfg.Service.Model = defaults.Service.Model
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	host := ResolveHost(cfg)
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		warnings = append(warnings, fmt.Sprintf("service host %q is not an absolute URL; requests will fail", host))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		warnings = append(warnings, fmt.Sprintf("service host %q uses unsupported scheme %q", host, u.Scheme))
	}
	if strings.TrimSpace(ResolveModel(cfg)) == "" {
		warnings = append(warnings, "service model is empty; every availability check will report the model as missing")
	}
	return warnings
}

// ResolveHost returns the inference service base URL.
// Priority: $GHOSTLINE_HOST env > config value.
func ResolveHost(cfg *Config) string {
	if host := os.Getenv("GHOSTLINE_HOST"); host != "" {
		return host
	}
	if cfg != nil {
		return cfg.Service.Host
	}
	return ""
}

// ResolveModel returns the model name.
// Priority: $GHOSTLINE_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("GHOSTLINE_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Service.Model
	}
	return ""
}

// ResolveServiceConfig returns the effective service config with env overrides applied.
func ResolveServiceConfig(cfg *Config) ServiceConfig {
	return ServiceConfig{
		Host:  ResolveHost(cfg),
		Model: ResolveModel(cfg),
	}
}
