//go:build linux || darwin

package adminapi

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// listenUnixSocket creates the admin socket with owner-only permissions
// and UID-verified accepts.
func listenUnixSocket(socketPath string, logger *zap.Logger) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create socket directory: %w", err)
	}

	if err := cleanupStaleSocket(socketPath, logger); err != nil {
		return nil, fmt.Errorf("cannot cleanup stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot create Unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("cannot set socket permissions: %w", err)
	}

	if err := verifySocketOwnership(socketPath); err != nil {
		ln.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("socket ownership verification failed: %w", err)
	}

	logger.Info("admin socket listener created",
		zap.String("path", socketPath),
		zap.String("permissions", "0600"))

	return &unixListener{Listener: ln, socketPath: socketPath, logger: logger}, nil
}

// cleanupStaleSocket removes a socket file left by a crashed process.
// A socket that still accepts connections belongs to a live server and
// is an error.
func cleanupStaleSocket(socketPath string, logger *zap.Logger) error {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket is in use by another process")
	}

	logger.Info("removing stale socket file", zap.String("path", socketPath))
	if err := os.Remove(socketPath); err != nil {
		return fmt.Errorf("cannot remove stale socket: %w", err)
	}
	return nil
}

// verifySocketOwnership checks that the socket file belongs to the
// current user.
func verifySocketOwnership(socketPath string) error {
	info, err := os.Stat(socketPath)
	if err != nil {
		return fmt.Errorf("cannot stat socket: %w", err)
	}
	uid, err := fileOwnerUID(info)
	if err != nil {
		return err
	}
	if uid != uint32(os.Getuid()) {
		return fmt.Errorf("socket not owned by current user (uid=%d, expected=%d)", uid, os.Getuid())
	}
	return nil
}

// unixListener removes the socket file on close and rejects connections
// from other users.
type unixListener struct {
	net.Listener
	socketPath string
	logger     *zap.Logger
}

func (ul *unixListener) Close() error {
	err := ul.Listener.Close()
	if removeErr := os.Remove(ul.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		ul.logger.Warn("failed to remove socket file",
			zap.Error(removeErr), zap.String("path", ul.socketPath))
	}
	return err
}

func (ul *unixListener) Accept() (net.Conn, error) {
	conn, err := ul.Listener.Accept()
	if err != nil {
		return nil, err
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("not a Unix connection")
	}

	// Must not dup the descriptor here: File() flips the shared file
	// description to blocking mode and Close then hangs behind any
	// pending read.
	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot access connection file descriptor: %w", err)
	}
	var peerUID uint32
	var credErr error
	if ctlErr := rawConn.Control(func(fd uintptr) {
		peerUID, credErr = peerCredentialUID(int(fd))
	}); ctlErr != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot access connection file descriptor: %w", ctlErr)
	}
	if credErr != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot get peer credentials: %w", credErr)
	}

	if peerUID != uint32(os.Getuid()) {
		conn.Close()
		ul.logger.Warn("rejected admin connection from different user",
			zap.Uint32("peer_uid", peerUID))
		return nil, fmt.Errorf("connection from different user (uid=%d)", peerUID)
	}
	return conn, nil
}

// listenNamedPipe is not available on Unix platforms.
func listenNamedPipe(pipeName string, _ *zap.Logger) (net.Listener, error) {
	return nil, fmt.Errorf("named pipes are only supported on Windows")
}
