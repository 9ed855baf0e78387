package sqlsession

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSession(t *testing.T, secrets map[string]string) *Session {
	t.Helper()
	s, err := Open(context.Background(), Config{}, secrets, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExecuteNamedParams(t *testing.T) {
	s := openTestSession(t, nil)

	rows, err := s.Execute(context.Background(),
		"SELECT $a + $b AS r", map[string]interface{}{"a": int64(2), "b": int64(3)})
	require.NoError(t, err)
	require.Equal(t, []string{"r"}, rows.Columns)
	require.Len(t, rows.Values, 1)
	assert.EqualValues(t, 5, rows.Values[0][0])
}

func TestExecuteIgnoresUnreferencedParams(t *testing.T) {
	s := openTestSession(t, nil)

	rows, err := s.Execute(context.Background(),
		"SELECT $a AS r", map[string]interface{}{"a": int64(1), "extra": "unused"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows.Values[0][0])
}

func TestSecretsRelation(t *testing.T) {
	s := openTestSession(t, map[string]string{"api_key": "s3cret"})

	rows, err := s.Execute(context.Background(),
		"SELECT value FROM session_secrets WHERE name = $n", map[string]interface{}{"n": "api_key"})
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, "s3cret", rows.Values[0][0])

	v, ok := s.Secret("api_key")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", v)

	_, ok = s.Secret("missing")
	assert.False(t, ok)
}

func TestMultiRow(t *testing.T) {
	s := openTestSession(t, nil)

	_, err := s.Execute(context.Background(),
		"CREATE TABLE nums (n INTEGER)", nil)
	require.NoError(t, err)
	_, err = s.Execute(context.Background(),
		"INSERT INTO nums VALUES (1), (2), (3)", nil)
	require.NoError(t, err)

	rows, err := s.Execute(context.Background(), "SELECT n FROM nums ORDER BY n", nil)
	require.NoError(t, err)
	require.Len(t, rows.Values, 3)
	assert.EqualValues(t, 2, rows.Values[1][0])

	tables, err := s.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nums"}, tables)
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	rw, err := Open(context.Background(), Config{Path: path}, nil, nil)
	require.NoError(t, err)
	_, err = rw.Execute(context.Background(), "CREATE TABLE t (x INTEGER)", nil)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := Open(context.Background(), Config{Path: path, ReadOnly: true}, nil, nil)
	require.NoError(t, err)
	defer ro.Close()

	assert.True(t, ro.ReadOnly())
	_, err = ro.Execute(context.Background(), "INSERT INTO t VALUES (1)", nil)
	assert.Error(t, err)

	_, err = ro.Execute(context.Background(), "SELECT COUNT(*) FROM t", nil)
	assert.NoError(t, err)
}

func TestClosedSession(t *testing.T) {
	s, err := Open(context.Background(), Config{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Execute(context.Background(), "SELECT 1", nil)
	assert.Error(t, err)

	// Double close is a no-op.
	assert.NoError(t, s.Close())
}
