package config

import (
	"fmt"
	"time"
)

// SchemaVersion is the required value of the site config's `mxcp` key.
const SchemaVersion = 1

// DefaultFileNames are the site config filenames probed in order.
var DefaultFileNames = []string{"mxcp-site.yml", "mxcp-site.yaml"}

// Config is the parsed site configuration: one document per project.
type Config struct {
	Schema  int    `yaml:"mxcp" mapstructure:"mxcp"`
	Project string `yaml:"project" mapstructure:"project"`
	Profile string `yaml:"profile" mapstructure:"profile"`

	// Secrets maps secret names to values or ${type:name} references.
	Secrets map[string]string `yaml:"secrets,omitempty" mapstructure:"secrets"`

	// Extensions lists SQL engine extensions to load.
	Extensions []string `yaml:"extensions,omitempty" mapstructure:"extensions"`

	Profiles map[string]Profile `yaml:"profiles,omitempty" mapstructure:"profiles"`

	SQLTools  SQLTools  `yaml:"sql_tools,omitempty" mapstructure:"sql_tools"`
	Transport Transport `yaml:"transport,omitempty" mapstructure:"transport"`
	Logging   Logging   `yaml:"logging,omitempty" mapstructure:"logging"`

	// DataDir holds runtime state: admin socket, instance identity,
	// reload history.
	DataDir string `yaml:"data_dir,omitempty" mapstructure:"data_dir"`

	// EndpointsDir is the root scanned for endpoint YAML files. Empty
	// means the directory containing the site config.
	EndpointsDir string `yaml:"endpoints_dir,omitempty" mapstructure:"endpoints_dir"`

	// BaseDir is the directory the site config was loaded from. Not a
	// YAML field.
	BaseDir string `yaml:"-" mapstructure:"-"`
}

// Profile is one named runtime profile.
type Profile struct {
	// Database is the SQL database file. Empty selects an in-memory
	// database.
	Database string `yaml:"database,omitempty" mapstructure:"database"`

	ReadOnly bool `yaml:"readonly,omitempty" mapstructure:"readonly"`

	Drift Drift `yaml:"drift,omitempty" mapstructure:"drift"`
	Audit Audit `yaml:"audit,omitempty" mapstructure:"audit"`
}

// Drift configures the drift-detection snapshot location.
type Drift struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// Audit configures the audit pipeline for a profile.
type Audit struct {
	Enabled       bool   `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Path          string `yaml:"path,omitempty" mapstructure:"path"`
	RetentionDays int    `yaml:"retention_days,omitempty" mapstructure:"retention_days"`
}

// SQLTools toggles the built-in query helper tools.
type SQLTools struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// Transport selects how the MCP edge is served.
type Transport struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode,omitempty" mapstructure:"mode"`

	// Addr is the HTTP listen address when mode is http.
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"`

	// Timeout bounds a single request end to end.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// Logging mirrors the server log setup: console plus an optional
// rotated file.
type Logging struct {
	Level         string `yaml:"level,omitempty" mapstructure:"level"`
	EnableFile    bool   `yaml:"enable_file,omitempty" mapstructure:"enable_file"`
	EnableConsole bool   `yaml:"enable_console,omitempty" mapstructure:"enable_console"`
	Filename      string `yaml:"filename,omitempty" mapstructure:"filename"`
	LogDir        string `yaml:"log_dir,omitempty" mapstructure:"log_dir"`
	MaxSize       int    `yaml:"max_size,omitempty" mapstructure:"max_size"`
	MaxBackups    int    `yaml:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAge        int    `yaml:"max_age,omitempty" mapstructure:"max_age"`
	Compress      bool   `yaml:"compress,omitempty" mapstructure:"compress"`
}

// TransportStdio and TransportHTTP are the supported edge modes.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ActiveProfile returns the effective profile settings. An undeclared
// profile name yields zero-value settings, which is valid: in-memory
// database, read-write, audit off.
func (c *Config) ActiveProfile() Profile {
	if c.Profiles == nil {
		return Profile{}
	}
	return c.Profiles[c.Profile]
}

// Validate checks the structural invariants of a loaded site config.
func (c *Config) Validate() error {
	if c.Schema != SchemaVersion {
		return fmt.Errorf("unsupported site config schema %d, want %d", c.Schema, SchemaVersion)
	}
	if c.Project == "" {
		return fmt.Errorf("site config requires a project name")
	}
	if c.Profile == "" {
		return fmt.Errorf("site config requires a profile name")
	}
	switch c.Transport.Mode {
	case "", TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	return nil
}
