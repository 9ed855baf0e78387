package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// registerBuiltinTools adds the ad-hoc SQL tools when the site config
// enables them. They bypass declared endpoints entirely: no type
// validation and no policies, which is why they default to off.
func (s *Server) registerBuiltinTools() {
	if !s.opts.SQLTools {
		return
	}

	executeTool := mcp.NewTool("execute_sql_query",
		mcp.WithDescription("Execute an ad-hoc SQL query against the project database. Use $name placeholders in the query and supply matching values in 'params'. In read-only mode only SELECT-style statements succeed."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("SQL statement to execute."),
		),
		mcp.WithObject("params",
			mcp.Description("Named values for $name placeholders in the query."),
		),
	)
	s.mcp.AddTool(executeTool, s.handleExecuteSQL)

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables and views visible in the project database."),
	)
	s.mcp.AddTool(listTablesTool, s.handleListTables)
}

func (s *Server) handleExecuteSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("missing required parameter 'query'"), nil
	}
	params, _ := args["params"].(map[string]interface{})

	release, err := s.reloader.EnterRequest(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer release()

	session := s.reloader.Session()
	if session == nil {
		return mcp.NewToolResultError(mxcperr.New(mxcperr.KindUnavailable, "no database session").Error()), nil
	}
	if session.ReadOnly() && !isReadQuery(query) {
		return mcp.NewToolResultError(mxcperr.New(mxcperr.KindPolicyDenied, "only read queries are allowed in read-only mode").Error()), nil
	}

	rows, err := session.Execute(ctx, query, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(rowsPayload(rows))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode rows: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleListTables(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	release, err := s.reloader.EnterRequest(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer release()

	session := s.reloader.Session()
	if session == nil {
		return mcp.NewToolResultError(mxcperr.New(mxcperr.KindUnavailable, "no database session").Error()), nil
	}

	tables, err := session.Tables(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := json.Marshal(map[string]interface{}{"tables": tables})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode tables: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// isReadQuery classifies a statement by its first keyword. The engine
// rejects writes anyway when the database is opened read-only; this
// check just produces a clearer error before the statement runs.
func isReadQuery(query string) bool {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "EXPLAIN":
		return true
	}
	return false
}

func rowsPayload(rows *sqlsession.Rows) map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(rows.Values))
	for _, row := range rows.Values {
		record := make(map[string]interface{}, len(rows.Columns))
		for i, col := range rows.Columns {
			record[col] = row[i]
		}
		records = append(records, record)
	}
	return map[string]interface{}{
		"columns":   rows.Columns,
		"rows":      records,
		"row_count": len(records),
	}
}
