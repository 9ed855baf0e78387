package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides: MXCP_PROFILE,
// MXCP_TRANSPORT_MODE, MXCP_LOGGING_LEVEL, and so on.
const envPrefix = "MXCP"

// LoadFromFile reads and validates one site config document.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse site config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve site config path: %w", err)
	}
	cfg.BaseDir = filepath.Dir(abs)

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load finds the site config by walking up from the working directory.
func Load() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	for {
		for _, name := range DefaultFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFromFile(path)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("no %s found in %s or any parent directory",
				DefaultFileNames[0], mustGetwd())
		}
		dir = parent
	}
}

// applyEnvOverrides layers MXCP_* environment variables over the file
// values. Only scalar settings are overridable this way.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if profile := v.GetString("profile"); profile != "" {
		cfg.Profile = profile
	}
	if dataDir := v.GetString("data_dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if endpointsDir := v.GetString("endpoints_dir"); endpointsDir != "" {
		cfg.EndpointsDir = endpointsDir
	}
	if mode := v.GetString("transport.mode"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if addr := v.GetString("transport.addr"); addr != "" {
		cfg.Transport.Addr = addr
	}
	if level := v.GetString("logging.level"); level != "" {
		cfg.Logging.Level = level
	}
	if v.IsSet("readonly") {
		profile := cfg.ActiveProfile()
		profile.ReadOnly = v.GetBool("readonly")
		if cfg.Profiles == nil {
			cfg.Profiles = map[string]Profile{}
		}
		cfg.Profiles[cfg.Profile] = profile
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.Mode == "" {
		cfg.Transport.Mode = TransportStdio
	}
	if cfg.Transport.Addr == "" {
		cfg.Transport.Addr = "127.0.0.1:8700"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.BaseDir, ".mxcp")
	}
	if cfg.EndpointsDir == "" {
		cfg.EndpointsDir = cfg.BaseDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.EnableConsole && !cfg.Logging.EnableFile {
		cfg.Logging.EnableConsole = true
	}
}

func mustGetwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
