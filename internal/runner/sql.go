package runner

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/identity"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

// SQLRunner executes SQL endpoint bodies against the shared session and
// maps row shapes onto the declared return type.
type SQLRunner struct {
	logger *zap.Logger
}

// NewSQLRunner creates a SQL runner.
func NewSQLRunner(logger *zap.Logger) *SQLRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLRunner{logger: logger}
}

// Run executes the endpoint statement with args bound as named parameters.
func (r *SQLRunner) Run(ctx context.Context, ep *endpoints.Endpoint, args map[string]interface{}, _ *identity.UserContext, session *sqlsession.Session) (interface{}, error) {
	rows, err := session.Execute(ctx, ep.Source.ResolvedCode, args)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, mxcperr.Wrap(mxcperr.KindCancelled, err, "query cancelled")
		}
		return nil, mxcperr.Wrap(mxcperr.KindSQLExecution, err, "%v", err)
	}
	return MapRows(rows, ep.ReturnType)
}

// MapRows converts a result set into the value shape the return type
// declares. Object return types must yield exactly one row mapped by
// column name; array types map one row per element; scalar types require
// a single row and column.
func MapRows(rows *sqlsession.Rows, ret *typesys.TypeSpec) (interface{}, error) {
	if ret == nil {
		// No declared return shape: rows as an array of objects.
		return rowsToObjects(rows), nil
	}

	switch {
	case ret.Type == typesys.TypeObject:
		if len(rows.Values) == 0 {
			return nil, mxcperr.New(mxcperr.KindNoRows, "statement returned no rows, expected one")
		}
		if len(rows.Values) > 1 {
			return nil, mxcperr.New(mxcperr.KindTooManyRows, "statement returned %d rows, expected one", len(rows.Values))
		}
		return rowToObject(rows.Columns, rows.Values[0]), nil

	case ret.Type == typesys.TypeArray:
		if ret.Items != nil && ret.Items.IsScalar() {
			if len(rows.Columns) != 1 {
				return nil, mxcperr.New(mxcperr.KindColumnMismatch, "scalar element type requires one column, got %d", len(rows.Columns))
			}
			out := make([]interface{}, len(rows.Values))
			for i, rec := range rows.Values {
				out[i] = rec[0]
			}
			return out, nil
		}
		result := rowsToObjects(rows)
		out := make([]interface{}, len(result))
		for i, m := range result {
			out[i] = m
		}
		return out, nil

	default: // scalar
		if len(rows.Values) == 0 {
			return nil, mxcperr.New(mxcperr.KindNoRows, "statement returned no rows, expected one")
		}
		if len(rows.Values) > 1 {
			return nil, mxcperr.New(mxcperr.KindTooManyRows, "statement returned %d rows, expected one", len(rows.Values))
		}
		if len(rows.Columns) != 1 {
			return nil, mxcperr.New(mxcperr.KindColumnMismatch, "scalar return type requires one column, got %d", len(rows.Columns))
		}
		return rows.Values[0][0], nil
	}
}

func rowsToObjects(rows *sqlsession.Rows) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows.Values))
	for i, rec := range rows.Values {
		out[i] = rowToObject(rows.Columns, rec)
	}
	return out
}

func rowToObject(columns []string, record []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		m[col] = record[i]
	}
	return m
}
