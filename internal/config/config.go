package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type DaemonConfig struct {
	Service       string   `toml:"service"`
	SessionID     string   `toml:"session_id"`
	MaxFrameBytes uint32   `toml:"max_frame_bytes"`
	DebugAddr     string   `toml:"debug_addr"`
	CorsOrigins   []string `toml:"cors_origins"`
}

type ClientConfig struct {
	Service   string `toml:"service"`
	SessionID string `toml:"session_id"`
	// CallTimeoutMS bounds each synchronous call; zero means wait
	// until the connection dies.
	CallTimeoutMS int `toml:"call_timeout_ms"`
}

func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{Service: "request"}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{Service: "request", CallTimeoutMS: 10_000}
}

// LoadDaemonConfig reads path when it is nonempty, otherwise returns
// defaults. Either way the result is validated.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return DaemonConfig{}, err
		}
	}
	if cfg.Service == "" {
		cfg.Service = "request"
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return ClientConfig{}, err
		}
	}
	if cfg.Service == "" {
		cfg.Service = "request"
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Service) == "" {
		return fmt.Errorf("daemon config missing service")
	}
	if strings.ContainsRune(cfg.Service, '/') {
		return fmt.Errorf("daemon config service must not contain '/'")
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Service) == "" {
		return fmt.Errorf("client config missing service")
	}
	if cfg.CallTimeoutMS < 0 {
		return fmt.Errorf("client config call_timeout_ms must not be negative")
	}
	return nil
}
