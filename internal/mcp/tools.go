package mcp

import (
	"context"
	"errors"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/ledgerbench/internal/storage"
)

// RegisterTools registers all benchmark history tools on the MCP
// server.
func RegisterTools(s *server.MCPServer, store storage.Storage) {
	registerHistory(s, store)
	registerReport(s, store)
	registerDeleteRun(s, store)
}

func registerHistory(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("bench_history",
		gomcp.WithDescription("List past benchmark runs, newest first: strategy, concurrency limit, success counts, verification result."),
		gomcp.WithNumber("limit",
			gomcp.Description("Maximum runs to return (default 20)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Runs to skip, for paging (default 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		offset := req.GetInt("offset", 0)

		reports, err := store.ListReports(ctx, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Failed to list runs: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatReportList(reports)), nil
	})
}

func registerReport(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("bench_report",
		gomcp.WithDescription("Get the full report of one benchmark run: outcomes, attempts, error kinds, and state verification."),
		gomcp.WithString("run_id",
			gomcp.Required(),
			gomcp.Description("Run ID from bench_history"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("run_id")
		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}

		report, err := store.GetReport(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return gomcp.NewToolResultError(fmt.Sprintf("No run with ID %s", id)), nil
		}
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Failed to load run: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatReport(report)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("bench_delete_run",
		gomcp.WithDescription("Delete a benchmark run from history. This is a MUTATING operation and cannot be undone."),
		gomcp.WithString("run_id",
			gomcp.Required(),
			gomcp.Description("Run ID from bench_history"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("run_id")
		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}

		err = store.DeleteReport(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return gomcp.NewToolResultError(fmt.Sprintf("No run with ID %s", id)), nil
		}
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Failed to delete run: %v", err)), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Deleted run %s", id)), nil
	})
}
