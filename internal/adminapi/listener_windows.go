//go:build windows

package adminapi

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"go.uber.org/zap"
)

// listenNamedPipe creates the admin pipe. go-winio's default security
// descriptor restricts connections to the current user, so accepts need
// no extra verification.
func listenNamedPipe(pipeName string, logger *zap.Logger) (net.Listener, error) {
	config := &winio.PipeConfig{
		SecurityDescriptor: "",
		MessageMode:        false,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}

	ln, err := winio.ListenPipe(pipeName, config)
	if err != nil {
		return nil, fmt.Errorf("cannot create named pipe: %w", err)
	}

	logger.Info("admin named pipe listener created",
		zap.String("pipe", pipeName),
		zap.String("security", "current user only"))
	return ln, nil
}

// listenUnixSocket is not available on Windows.
func listenUnixSocket(socketPath string, _ *zap.Logger) (net.Listener, error) {
	return nil, fmt.Errorf("Unix domain sockets are not supported on Windows")
}
