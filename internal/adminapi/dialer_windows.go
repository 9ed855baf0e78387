//go:build windows

package adminapi

import (
	"context"
	"net"

	winio "github.com/Microsoft/go-winio"
)

// dialAdmin connects to the admin endpoint. On Windows the endpoint is a
// named pipe path.
func dialAdmin(ctx context.Context, endpoint string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, endpoint)
}
