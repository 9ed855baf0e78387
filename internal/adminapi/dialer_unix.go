//go:build !windows

package adminapi

import (
	"context"
	"net"
)

// dialAdmin connects to the admin endpoint. On unix platforms the
// endpoint is a socket path.
func dialAdmin(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}
