//go:build darwin

package adminapi

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerCredentialUID reads the connecting UID via LOCAL_PEERCRED.
func peerCredentialUID(fd int) (uint32, error) {
	cred, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return 0, fmt.Errorf("LOCAL_PEERCRED failed: %w", err)
	}
	return cred.Uid, nil
}

// fileOwnerUID returns the owning UID of a file.
func fileOwnerUID(info os.FileInfo) (uint32, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("cannot get file ownership info")
	}
	return stat.Uid, nil
}
