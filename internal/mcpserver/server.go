// Package mcpserver implements an MCP (Model Context Protocol) server that
// exposes a sqlitekit database as typed tools over stdio JSON-RPC.
// Mutating tools are left out entirely when the server is read-only.
package mcpserver

import (
	"context"
	stdlog "log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/joestump/sqlitekit/internal/config"
	"github.com/joestump/sqlitekit/internal/db"
)

// Server holds the MCP server state and configuration.
type Server struct {
	db       *db.DB
	readOnly bool
}

// NewServer creates an MCP server backed by the given database.
func NewServer(database *db.DB, readOnly bool) *Server {
	return &Server{db: database, readOnly: readOnly}
}

// Tools returns the tools this server exposes.
func (s *Server) Tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: scalarTool(), Handler: s.handleScalar},
		{Tool: tableVersionTool(), Handler: s.handleTableVersion},
	}
	if s.readOnly {
		return tools
	}
	return append(tools,
		server.ServerTool{Tool: executeTool(), Handler: s.handleExecute},
		server.ServerTool{Tool: executeBatchTool(), Handler: s.handleExecuteBatch},
		server.ServerTool{Tool: upsertTool(), Handler: s.handleUpsert},
		server.ServerTool{Tool: ensureTableTool(), Handler: s.handleEnsureTable},
	)
}

// Run starts the MCP stdio server. It blocks until the context is cancelled
// or stdin is closed.
func Run(ctx context.Context, database *db.DB, readOnly bool) error {
	s := NewServer(database, readOnly)

	mcpServer := server.NewMCPServer(
		"sqlitekit",
		config.Version,
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTools(s.Tools()...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(stdlog.New(log.StandardLogger().WriterLevel(log.ErrorLevel), "[mcp] ", 0))

	log.WithFields(log.Fields{
		"db":        database.Path(),
		"read_only": readOnly,
	}).Info("mcp server listening on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
