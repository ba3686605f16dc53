package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	log "github.com/sirupsen/logrus"

	"github.com/joestump/sqlitekit/internal/db"
)

// --- Tool Definitions ---

const templateProperties = `
	"sqlExpression": {
		"type": "string",
		"description": "SQL with positional ? placeholders"
	},
	"params": {
		"type": "array",
		"description": "Values bound to the placeholders, in order (string, number, boolean or null)"
	}`

func templateTool(name, description string) mcp.Tool {
	return mcp.NewToolWithRawSchema(
		name,
		description,
		json.RawMessage(`{
			"type": "object",
			"properties": {`+templateProperties+`
			},
			"required": ["sqlExpression"]
		}`),
	)
}

func queryTool() mcp.Tool {
	return templateTool("query", "Run a SQL query and return every row as a JSON object keyed by column name.")
}

func scalarTool() mcp.Tool {
	return templateTool("scalar", "Run a SQL query and return the first column of the first row, or null when there are no rows.")
}

func executeTool() mcp.Tool {
	return templateTool("execute", "Run a single SQL statement and return the number of rows it changed.")
}

func executeBatchTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"execute_batch",
		"Run several SQL statements in one transaction. Either all take effect or none do.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"statements": {
					"type": "array",
					"description": "Statements to run, in order",
					"items": {
						"type": "object",
						"properties": {`+templateProperties+`
						},
						"required": ["sqlExpression"]
					}
				}
			},
			"required": ["statements"]
		}`),
	)
}

func upsertTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"upsert",
		"Insert rows into a table, replacing any existing row with the same primary or unique key.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tableName": {
					"type": "string",
					"description": "Target table"
				},
				"columnNames": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Columns to write; missing values are written as null"
				},
				"rows": {
					"type": "array",
					"description": "Row objects keyed by column name",
					"items": {"type": "object"}
				}
			},
			"required": ["tableName", "columnNames", "rows"]
		}`),
	)
}

func ensureTableTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"ensure_table",
		"Create or recreate a table when the given version is newer than the stored one. Recreating drops all existing rows.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tableName": {
					"type": "string",
					"description": "Table name"
				},
				"version": {
					"type": "integer",
					"description": "Schema version the DDL represents"
				},
				"createSql": {
					"type": "string",
					"description": "CREATE TABLE statement"
				}
			},
			"required": ["tableName", "version", "createSql"]
		}`),
	)
}

func tableVersionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"table_version",
		"Get the stored schema version of a table (0 if none was recorded).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tableName": {
					"type": "string",
					"description": "Table name"
				}
			},
			"required": ["tableName"]
		}`),
	)
}

// --- Tool Handlers ---

// rowsAffectedResult is the response for every mutating tool.
type rowsAffectedResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

type scalarResult struct {
	Value db.Value `json:"value"`
}

type batchArgs struct {
	Statements []db.Template `json:"statements"`
}

type upsertArgs struct {
	db.UpsertSpec
	Rows []db.Row `json:"rows"`
}

type tableArgs struct {
	Table string `json:"tableName"`
}

type tableVersionResult struct {
	Table   string `json:"table"`
	Version int    `json:"version"`
}

func bindTemplate(req mcp.CallToolRequest) (db.Template, *mcp.CallToolResult) {
	var t db.Template
	if err := req.BindArguments(&t); err != nil {
		return t, mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if t.Expression == "" {
		return t, mcp.NewToolResultError("sqlExpression is required")
	}
	return t, nil
}

func (s *Server) handleQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, bad := bindTemplate(req)
	if bad != nil {
		return bad, nil
	}
	rows, err := s.db.Query(t)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query: %v", err)), nil
	}
	return resultJSON(rows)
}

func (s *Server) handleScalar(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, bad := bindTemplate(req)
	if bad != nil {
		return bad, nil
	}
	v, err := s.db.ExecuteScalar(t)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scalar: %v", err)), nil
	}
	return resultJSON(scalarResult{Value: v})
}

func (s *Server) handleExecute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, bad := bindTemplate(req)
	if bad != nil {
		return bad, nil
	}
	n, err := s.db.ExecuteNonQuery(t)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute: %v", err)), nil
	}
	return resultJSON(rowsAffectedResult{RowsAffected: n})
}

func (s *Server) handleExecuteBatch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args batchArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(args.Statements) == 0 {
		return mcp.NewToolResultError("statements is required"), nil
	}

	n, err := s.db.ExecuteBatch(args.Statements)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute batch: %v", err)), nil
	}
	log.WithFields(log.Fields{"statements": len(args.Statements), "affected": n}).Info("[mcp] batch committed")
	return resultJSON(rowsAffectedResult{RowsAffected: n})
}

func (s *Server) handleUpsert(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args upsertArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	n, err := s.db.Upsert(args.UpsertSpec, args.Rows)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(rowsAffectedResult{RowsAffected: n})
}

func (s *Server) handleEnsureTable(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var spec db.TableSpec
	if err := req.BindArguments(&spec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	n, err := s.db.EnsureTable(spec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(rowsAffectedResult{RowsAffected: n})
}

func (s *Server) handleTableVersion(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args tableArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Table == "" {
		return mcp.NewToolResultError("tableName is required"), nil
	}

	v, err := s.db.GetTableVersion(args.Table)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(tableVersionResult{Table: args.Table, Version: v})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
