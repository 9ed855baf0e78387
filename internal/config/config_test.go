package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteYAML = `
mxcp: 1
project: payroll
profile: dev
secrets:
  api_key: "${env:PAYROLL_API_KEY}"
  inline_token: "literal-value"
extensions:
  - json
  - fts5
profiles:
  dev:
    database: dev.db
    readonly: false
    audit:
      enabled: true
      path: logs/audit
      retention_days: 30
  prod:
    database: prod.db
    readonly: true
sql_tools:
  enabled: true
transport:
  mode: http
  addr: "127.0.0.1:9000"
`

func writeSite(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mxcp-site.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeSite(t, siteYAML))
	require.NoError(t, err)

	assert.Equal(t, "payroll", cfg.Project)
	assert.Equal(t, "dev", cfg.Profile)
	assert.Equal(t, "${env:PAYROLL_API_KEY}", cfg.Secrets["api_key"])
	assert.Equal(t, []string{"json", "fts5"}, cfg.Extensions)
	assert.True(t, cfg.SQLTools.Enabled)
	assert.Equal(t, TransportHTTP, cfg.Transport.Mode)
	assert.Equal(t, "127.0.0.1:9000", cfg.Transport.Addr)

	profile := cfg.ActiveProfile()
	assert.Equal(t, "dev.db", profile.Database)
	assert.False(t, profile.ReadOnly)
	assert.True(t, profile.Audit.Enabled)
	assert.Equal(t, 30, profile.Audit.RetentionDays)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeSite(t, "mxcp: 1\nproject: p\nprofile: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Transport.Mode)
	assert.Equal(t, filepath.Join(cfg.BaseDir, ".mxcp"), cfg.DataDir)
	assert.Equal(t, cfg.BaseDir, cfg.EndpointsDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.EnableConsole)

	// An undeclared profile is valid and yields zero-value settings.
	profile := cfg.ActiveProfile()
	assert.Empty(t, profile.Database)
	assert.False(t, profile.ReadOnly)
}

func TestLoadRejectsWrongSchema(t *testing.T) {
	_, err := LoadFromFile(writeSite(t, "mxcp: 2\nproject: p\nprofile: dev\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestLoadRequiresProjectAndProfile(t *testing.T) {
	_, err := LoadFromFile(writeSite(t, "mxcp: 1\nprofile: dev\n"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeSite(t, "mxcp: 1\nproject: p\n"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	_, err := LoadFromFile(writeSite(t, "mxcp: 1\nproject: p\nprofile: dev\ntransport:\n  mode: carrier-pigeon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MXCP_PROFILE", "prod")
	t.Setenv("MXCP_TRANSPORT_MODE", "stdio")
	t.Setenv("MXCP_LOGGING_LEVEL", "debug")

	cfg, err := LoadFromFile(writeSite(t, siteYAML))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Profile)
	assert.Equal(t, TransportStdio, cfg.Transport.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.ActiveProfile().ReadOnly)
}
