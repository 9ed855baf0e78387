package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

func newTestSession(t *testing.T) *sqlsession.Session {
	t.Helper()
	session, err := sqlsession.Open(context.Background(), sqlsession.Config{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func sqlEndpoint(name, code string, ret *typesys.TypeSpec) *endpoints.Endpoint {
	return &endpoints.Endpoint{
		ID:         "tool:" + name,
		Kind:       endpoints.KindTool,
		Name:       name,
		Enabled:    true,
		ReturnType: ret,
		Source: endpoints.Source{
			Language:     endpoints.LanguageSQL,
			ResolvedCode: code,
		},
	}
}

func TestSQLRunnerScalarReturn(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ep := sqlEndpoint("add", "SELECT $a + $b AS total", &typesys.TypeSpec{Type: typesys.TypeInteger})
	result, err := r.Run(context.Background(), ep, map[string]interface{}{"a": int64(2), "b": int64(3)}, nil, session)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result)
}

func TestSQLRunnerObjectReturn(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ret := &typesys.TypeSpec{Type: typesys.TypeObject}
	ep := sqlEndpoint("whoami", "SELECT 'ada' AS name, 42 AS age", ret)
	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "ada", "age": int64(42)}, result)
}

func TestSQLRunnerObjectRowCount(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)
	ret := &typesys.TypeSpec{Type: typesys.TypeObject}

	_, err := r.Run(context.Background(), sqlEndpoint("none", "SELECT 1 AS n WHERE 1 = 0", ret), nil, nil, session)
	assert.Equal(t, mxcperr.KindNoRows, mxcperr.KindOf(err))

	_, err = r.Run(context.Background(), sqlEndpoint("many", "SELECT 1 AS n UNION ALL SELECT 2", ret), nil, nil, session)
	assert.Equal(t, mxcperr.KindTooManyRows, mxcperr.KindOf(err))
}

func TestSQLRunnerScalarArrayReturn(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ret := &typesys.TypeSpec{
		Type:  typesys.TypeArray,
		Items: &typesys.TypeSpec{Type: typesys.TypeInteger},
	}
	ep := sqlEndpoint("seq", "SELECT 1 AS n UNION ALL SELECT 2 UNION ALL SELECT 3", ret)
	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, result)
}

func TestSQLRunnerScalarArrayColumnMismatch(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ret := &typesys.TypeSpec{
		Type:  typesys.TypeArray,
		Items: &typesys.TypeSpec{Type: typesys.TypeInteger},
	}
	ep := sqlEndpoint("wide", "SELECT 1 AS a, 2 AS b", ret)
	_, err := r.Run(context.Background(), ep, nil, nil, session)
	assert.Equal(t, mxcperr.KindColumnMismatch, mxcperr.KindOf(err))
}

func TestSQLRunnerObjectArrayReturn(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ret := &typesys.TypeSpec{
		Type:  typesys.TypeArray,
		Items: &typesys.TypeSpec{Type: typesys.TypeObject},
	}
	ep := sqlEndpoint("rows", "SELECT 'a' AS k, 1 AS v UNION ALL SELECT 'b', 2", ret)
	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"k": "a", "v": int64(1)},
		map[string]interface{}{"k": "b", "v": int64(2)},
	}, result)
}

func TestSQLRunnerNoReturnType(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ep := sqlEndpoint("raw", "SELECT 'x' AS c", nil)
	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{{"c": "x"}}, result)
}

func TestSQLRunnerExecutionError(t *testing.T) {
	session := newTestSession(t)
	r := NewSQLRunner(nil)

	ep := sqlEndpoint("broken", "SELECT * FROM no_such_table", nil)
	_, err := r.Run(context.Background(), ep, nil, nil, session)
	assert.Equal(t, mxcperr.KindSQLExecution, mxcperr.KindOf(err))
}
