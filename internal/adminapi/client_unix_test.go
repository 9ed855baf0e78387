//go:build linux || darwin

package adminapi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/reload"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// startSocketServer serves the admin API on a real unix socket.
func startSocketServer(t *testing.T) (*Client, *Server) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "admin.sock")
	ln, err := Listen(socketPath, zap.NewNop())
	require.NoError(t, err)

	session, err := sqlsession.Open(context.Background(), sqlsession.Config{}, nil, zap.NewNop())
	require.NoError(t, err)

	registry := endpoints.NewRegistry()
	reloader := reload.NewController(reload.Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) { return nil, nil },
		OpenSession: func(ctx context.Context, secrets map[string]string) (*sqlsession.Session, error) {
			return sqlsession.Open(ctx, sqlsession.Config{}, secrets, zap.NewNop())
		},
	}, registry, session, reload.DefaultDrainTimeout, zap.NewNop())
	t.Cleanup(func() { _ = reloader.Close() })
	srv := NewServer(Info{Version: "test", Project: "demo", Profile: "dev", StartedAt: time.Now()}, registry, reloader, zap.NewNop())

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return NewClient(socketPath), srv
}

func TestClientHealthOverSocket(t *testing.T) {
	client, _ := startSocketServer(t)

	require.NoError(t, client.Health(context.Background()))
}

func TestClientStatusOverSocket(t *testing.T) {
	client, _ := startSocketServer(t)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "demo", status["project"])
	assert.Equal(t, "dev", status["profile"])
}

func TestClientReloadOverSocket(t *testing.T) {
	client, _ := startSocketServer(t)

	id, err := client.Reload(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

// Shutdown must not hang on a keep-alive connection whose next read is
// still pending inside net/http.
func TestShutdownWithIdleKeepAliveConnection(t *testing.T) {
	client, srv := startSocketServer(t)

	require.NoError(t, client.Health(context.Background()))

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete with an idle connection open")
	}
}

func TestClientErrorWhenServerDown(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	err := client.Health(context.Background())
	require.Error(t, err)
}
