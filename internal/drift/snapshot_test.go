package drift

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

func newSession(t *testing.T) *sqlsession.Session {
	t.Helper()
	session, err := sqlsession.Open(context.Background(), sqlsession.Config{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestGenerateCapturesSchemaAndEndpoints(t *testing.T) {
	session := newSession(t)
	_, err := session.Execute(context.Background(),
		"CREATE TABLE orders (id INTEGER, total REAL)", nil)
	require.NoError(t, err)

	result := &endpoints.Result{
		Loaded: []*endpoints.Endpoint{
			{
				ID:      "tool:add",
				Kind:    endpoints.KindTool,
				Name:    "add",
				Enabled: true,
				Parameters: []endpoints.Parameter{
					{Name: "a", Spec: &typesys.TypeSpec{Type: typesys.TypeInteger}},
				},
				SourceFile: "tools/add.yml",
			},
		},
		Errors: []endpoints.LoadError{
			{File: "tools/broken.yml", Err: errors.New("missing source")},
		},
	}

	snapshot, err := Generate(context.Background(), session, result)
	require.NoError(t, err)

	assert.Equal(t, SnapshotVersion, snapshot.Version)
	assert.False(t, snapshot.GeneratedAt.IsZero())

	require.Len(t, snapshot.Tables, 1)
	assert.Equal(t, "orders", snapshot.Tables[0].Name)
	require.Len(t, snapshot.Tables[0].Columns, 2)
	assert.Equal(t, Column{Name: "id", Type: "INTEGER"}, snapshot.Tables[0].Columns[0])

	require.Len(t, snapshot.Resources, 2)
	assert.Equal(t, "ok", snapshot.Resources[0].Validation.Status)
	assert.NotEmpty(t, snapshot.Resources[0].Metadata["definition_hash"])
	assert.Equal(t, "error", snapshot.Resources[1].Validation.Status)
	assert.Contains(t, snapshot.Resources[1].Validation.Error, "missing source")
	assert.Nil(t, snapshot.Resources[1].Definition)
}

func TestWriteReadRoundTrip(t *testing.T) {
	session := newSession(t)
	snapshot, err := Generate(context.Background(), session, &endpoints.Result{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state", "drift.json")
	require.NoError(t, Write(path, snapshot))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version, loaded.Version)
	assert.Empty(t, loaded.Tables)
}
