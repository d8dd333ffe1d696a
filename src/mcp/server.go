package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"checkrelay/src/store"
)

// Server is the MCP server for checkrelay.
type Server struct {
	mcpServer *server.MCPServer
	memory    store.Store
}

// NewServer creates a new MCP server over the given snapshot store.
func NewServer(memory store.Store) *Server {
	s := server.NewMCPServer(
		"checkrelay",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		memory:    memory,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_builds",
		mcp.WithDescription("List every build the relay is tracking, with job counts, per-state totals, and when each snapshot last changed."),
	)

	getTool := mcp.NewTool("get_build",
		mcp.WithDescription("Get the stored job records for one build, including the check run ids backing them. Use list_builds to discover keys."),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Build key in domain/id form (e.g. travis-ci.com/8150)"),
		),
	)

	forgetTool := mcp.NewTool("forget_build",
		mcp.WithDescription("Drop the stored snapshot for one build. The next provider notification for it creates fresh check runs instead of updating the old ones."),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Build key in domain/id form (e.g. travis-ci.com/8150)"),
		),
	)

	s.mcpServer.AddTool(listTool, s.handleListBuilds)
	s.mcpServer.AddTool(getTool, s.handleGetBuild)
	s.mcpServer.AddTool(forgetTool, s.handleForgetBuild)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// handleListBuilds handles the list_builds tool call.
func (s *Server) handleListBuilds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshots, err := s.memory.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list builds: %v", err)), nil
	}

	summaries := make([]BuildSummary, 0, len(snapshots))
	for _, snap := range snapshots {
		summaries = append(summaries, Summarize(snap))
	}

	jsonBytes, err := json.Marshal(summaries)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleGetBuild handles the get_build tool call.
func (s *Server) handleGetBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := request.GetString("key", "")
	if key == "" {
		return mcp.NewToolResultError("key parameter is required"), nil
	}

	records, err := s.memory.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read build: %v", err)), nil
	}
	if records == nil {
		return mcp.NewToolResultError(fmt.Sprintf("build not tracked: %s", key)), nil
	}

	detail := Detail(store.Snapshot{Key: key, Records: records})
	jsonBytes, err := json.Marshal(detail)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleForgetBuild handles the forget_build tool call.
func (s *Server) handleForgetBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := request.GetString("key", "")
	if key == "" {
		return mcp.NewToolResultError("key parameter is required"), nil
	}

	records, err := s.memory.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read build: %v", err)), nil
	}
	if records == nil {
		return mcp.NewToolResultError(fmt.Sprintf("build not tracked: %s", key)), nil
	}

	if err := s.memory.Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to forget build: %v", err)), nil
	}

	result := map[string]any{"forgotten": key, "records": len(records)}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}
