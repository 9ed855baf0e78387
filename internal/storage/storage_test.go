package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIdentityIsStable(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	first, err := s.Identity()
	require.NoError(t, err)
	require.NotEmpty(t, first.InstanceID)
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	second, err := s.Identity()
	require.NoError(t, err)

	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, first.ShortID(), second.ShortID())
	assert.Len(t, first.ShortID(), 8)
}

func TestReloadHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	events := []ReloadEvent{
		{At: time.Now().UTC(), Status: "success", Trigger: "signal"},
		{At: time.Now().UTC(), Status: "error", Error: "vault unreachable", Trigger: "admin"},
	}
	for _, event := range events {
		require.NoError(t, s.RecordReload(event))
	}

	history, err := s.ReloadHistory()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "success", history[0].Status)
	assert.Equal(t, "error", history[1].Status)
	assert.Equal(t, "vault unreachable", history[1].Error)
}

func TestReloadHistoryCapped(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < maxReloadHistory+10; i++ {
		require.NoError(t, s.RecordReload(ReloadEvent{
			At:      time.Now().UTC(),
			Status:  "success",
			Trigger: "admin",
		}))
	}

	history, err := s.ReloadHistory()
	require.NoError(t, err)
	assert.Len(t, history, maxReloadHistory)
}
