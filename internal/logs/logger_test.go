package logs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/config"
)

func TestSetupConsoleOnly(t *testing.T) {
	logger, err := Setup(DefaultConfig())
	require.NoError(t, err)
	logger.Info("console logger works")
	// Sync on a terminal or pipe stderr reports EINVAL; callers discard it.
	_ = logger.Sync()
}

func TestSetupFileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Logging{
		Level:      LogLevelDebug,
		EnableFile: true,
		LogDir:     dir,
		Filename:   "test.log",
		MaxSize:    1,
	}

	logger, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("file logger works", zap.String("key", "value"))
	_ = logger.Sync()

	assert.FileExists(t, filepath.Join(dir, "test.log"))
}

func TestSetupRejectsNoOutputs(t *testing.T) {
	_, err := Setup(config.Logging{EnableFile: false, EnableConsole: false})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zap.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zap.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zap.InfoLevel, parseLevel("info"))
	assert.Equal(t, zap.InfoLevel, parseLevel("bogus"))
}

func TestFilePathWithExplicitDir(t *testing.T) {
	dir := t.TempDir()
	path, err := FilePath(dir, "x.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.log"), path)
}
