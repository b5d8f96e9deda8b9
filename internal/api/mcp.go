package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline Pipeline
	Runs     RunStore // optional; if nil, get_run returns an error
	Version  string
}

// NewMCPServer creates an MCP server exposing the comparison tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"icebreaker",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("icebreaker compares two LinkedIn profiles and suggests common ground and conversation openers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("compare_profiles",
			mcp.WithDescription("Collect two LinkedIn profiles and generate common ground and icebreaker questions. Can take a few minutes."),
			mcp.WithString("url_a", mcp.Description("First profile URL"), mcp.Required()),
			mcp.WithString("url_b", mcp.Description("Second profile URL"), mcp.Required()),
		),
		mcpCompareProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Return the recorded state and result of a comparison run."),
			mcp.WithString("run_id", mcp.Description("Run ID returned by compare_profiles or the HTTP API"), mcp.Required()),
		),
		mcpGetRun(deps),
	)

	return s
}

func mcpCompareProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urlA, err := req.RequireString("url_a")
		if err != nil {
			return mcpError("url_a is required"), nil
		}
		urlB, err := req.RequireString("url_b")
		if err != nil {
			return mcpError("url_b is required"), nil
		}

		run, err := deps.Pipeline.Run(ctx, []collect.ProfileRef{{URL: urlA}, {URL: urlB}})
		if err != nil {
			return mcpError(fmt.Sprintf("comparison failed (%s): %v", apperr.Name(err), err)), nil
		}
		return mcpText(run.Insight), nil
	}
}

func mcpGetRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Runs == nil {
			return mcpError("run history is not available"), nil
		}
		id, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		run, err := deps.Runs.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("run %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get run: %v", err)), nil
		}

		b, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal run: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
