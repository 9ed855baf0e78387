package reload

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

func openSession(t *testing.T, secrets map[string]string) *sqlsession.Session {
	t.Helper()
	session, err := sqlsession.Open(context.Background(), sqlsession.Config{}, secrets, zap.NewNop())
	require.NoError(t, err)
	return session
}

func newTestController(t *testing.T, hooks Hooks, drainTimeout time.Duration) *Controller {
	t.Helper()
	if hooks.ResolveSecrets == nil {
		hooks.ResolveSecrets = func(context.Context) (map[string]string, error) {
			return nil, nil
		}
	}
	if hooks.OpenSession == nil {
		hooks.OpenSession = func(ctx context.Context, secrets map[string]string) (*sqlsession.Session, error) {
			return sqlsession.Open(ctx, sqlsession.Config{}, secrets, zap.NewNop())
		}
	}
	registry := endpoints.NewRegistry()
	c := NewController(hooks, registry, openSession(t, map[string]string{"token": "old"}), drainTimeout, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestReloadSwapsSessionWithFreshSecrets(t *testing.T) {
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			return map[string]string{"token": "new"}, nil
		},
	}, time.Second)

	value, ok := c.Session().Secret("token")
	require.True(t, ok)
	assert.Equal(t, "old", value)

	require.NoError(t, c.Reload(context.Background()))

	value, ok = c.Session().Secret("token")
	require.True(t, ok)
	assert.Equal(t, "new", value)

	state := c.State()
	assert.Equal(t, "success", state.LastReloadStatus)
	assert.Empty(t, state.LastReloadError)
	assert.False(t, state.InProgress)
}

func TestReloadWaitsForInFlightRequest(t *testing.T) {
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			return map[string]string{"token": "new"}, nil
		},
	}, 5*time.Second)

	release, err := c.EnterRequest(context.Background())
	require.NoError(t, err)
	held := c.Session()

	reloadDone := make(chan error, 1)
	go func() { reloadDone <- c.Reload(context.Background()) }()

	// The reload must not complete while the request is in flight.
	select {
	case err := <-reloadDone:
		t.Fatalf("reload finished with a request in flight: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The in-flight request still sees the old session.
	value, ok := held.Secret("token")
	require.True(t, ok)
	assert.Equal(t, "old", value)

	release()
	require.NoError(t, <-reloadDone)

	value, ok = c.Session().Secret("token")
	require.True(t, ok)
	assert.Equal(t, "new", value)
}

func TestReloadFailureKeepsPreviousState(t *testing.T) {
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			return nil, fmt.Errorf("vault unreachable")
		},
	}, time.Second)

	err := c.Reload(context.Background())
	require.Error(t, err)

	state := c.State()
	assert.Equal(t, "error", state.LastReloadStatus)
	assert.Contains(t, state.LastReloadError, "vault unreachable")

	// The previous session stays live and functional.
	value, ok := c.Session().Secret("token")
	require.True(t, ok)
	assert.Equal(t, "old", value)
	_, err = c.Session().Execute(context.Background(), "SELECT 1 AS n", nil)
	assert.NoError(t, err)
}

func TestReloadDrainTimeout(t *testing.T) {
	c := newTestController(t, Hooks{}, 50*time.Millisecond)

	release, err := c.EnterRequest(context.Background())
	require.NoError(t, err)
	defer release()

	err = c.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, mxcperr.KindUnavailable, mxcperr.KindOf(err))
	assert.Equal(t, "error", c.State().LastReloadStatus)

	// The gate must reopen after the aborted reload.
	release2, err := c.EnterRequest(context.Background())
	require.NoError(t, err)
	release2()
}

func TestReloadGuardRejectsConcurrentReload(t *testing.T) {
	block := make(chan struct{})
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			<-block
			return nil, nil
		},
	}, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	firstDone := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstDone <- c.Reload(context.Background())
	}()

	// Wait until the first reload is inside its hooks.
	require.Eventually(t, func() bool { return c.State().InProgress }, time.Second, 5*time.Millisecond)

	err := c.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, mxcperr.KindUnavailable, mxcperr.KindOf(err))

	close(block)
	wg.Wait()
	require.NoError(t, <-firstDone)
}

func TestEnterRequestBlocksWhileDraining(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			close(started)
			<-finish
			return nil, nil
		},
	}, time.Second)

	go func() { _ = c.Reload(context.Background()) }()
	<-started

	// Admission during draining blocks until the reload completes.
	admitted := make(chan struct{})
	go func() {
		release, err := c.EnterRequest(context.Background())
		if err == nil {
			release()
		}
		close(admitted)
	}()

	select {
	case <-admitted:
		t.Fatal("request admitted while draining")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("request never admitted after reload finished")
	}
}

// An admitted request must keep its session usable for its whole
// lifetime even when reloads race with admission.
func TestAdmittedRequestKeepsSessionDuringReloads(t *testing.T) {
	c := newTestController(t, Hooks{}, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				release, err := c.EnterRequest(ctx)
				if err != nil {
					return
				}
				session := c.Session()
				_, execErr := session.Execute(context.Background(), "SELECT 1", nil)
				release()
				if execErr != nil {
					t.Errorf("admitted request lost its session: %v", execErr)
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, c.Reload(context.Background()))
	}
	cancel()
	wg.Wait()
}

func TestOnCompleteObservesOutcomes(t *testing.T) {
	var mu sync.Mutex
	var outcomes []error

	failSecrets := false
	c := newTestController(t, Hooks{
		ResolveSecrets: func(context.Context) (map[string]string, error) {
			if failSecrets {
				return nil, fmt.Errorf("vault unreachable")
			}
			return nil, nil
		},
		OnComplete: func(err error) {
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		},
	}, time.Second)

	require.NoError(t, c.Reload(context.Background()))
	failSecrets = true
	require.Error(t, c.Reload(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0])
	assert.ErrorContains(t, outcomes[1], "vault unreachable")
}
