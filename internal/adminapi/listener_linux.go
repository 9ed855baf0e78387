//go:build linux

package adminapi

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerCredentialUID reads the connecting UID via SO_PEERCRED.
func peerCredentialUID(fd int) (uint32, error) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, fmt.Errorf("SO_PEERCRED failed: %w", err)
	}
	return ucred.Uid, nil
}

// fileOwnerUID returns the owning UID of a file.
func fileOwnerUID(info os.FileInfo) (uint32, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("cannot get file ownership info")
	}
	return stat.Uid, nil
}
