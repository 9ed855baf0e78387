package adminapi

import (
	"net"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultEndpoint returns the platform-appropriate admin endpoint under
// the given data directory: a Unix socket path, or a named pipe on
// Windows.
func DefaultEndpoint(dataDir string) string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\mxcp-admin`
	}
	return dataDir + "/admin.sock"
}

// Listen creates the local-only listener for the admin surface. The
// transport is filesystem-permission-gated: a Unix socket with
// owner-only permissions, or a named pipe restricted to the current
// user on Windows.
func Listen(endpoint string, logger *zap.Logger) (net.Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.HasPrefix(endpoint, `\\.\pipe\`) {
		return listenNamedPipe(endpoint, logger)
	}
	return listenUnixSocket(endpoint, logger)
}
