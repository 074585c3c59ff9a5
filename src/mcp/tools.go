package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"garnix-insights/src/dispatch"
	"garnix-insights/src/render"
)

// registerTools registers all available tools.
func (s *Server) registerTools() {
	buildStatusTool := mcp.NewTool(ToolBuildStatus,
		mcp.WithDescription("Fetch the Garnix CI build status for a commit. Returns per-package results (passed, failed, pending) with totals. Failed packages include an excerpt of their build log."),
		mcp.WithString("commit_id",
			mcp.Required(),
			mcp.Description("Git commit SHA to look up"),
		),
		mcp.WithString("token",
			mcp.Description("Garnix JWT; defaults to GARNIX_JWT_TOKEN"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: json (default), human or plain"),
			mcp.Enum("json", "human", "plain"),
		),
	)

	buildLogsTool := mcp.NewTool(ToolBuildLogs,
		mcp.WithDescription("Fetch build logs from Garnix, either for one build id or for the failed packages of a commit."),
		mcp.WithString("build_id",
			mcp.Description("Garnix build id of a single package build"),
		),
		mcp.WithString("commit_id",
			mcp.Description("Git commit SHA; logs of its failed packages are returned"),
		),
		mcp.WithBoolean("all",
			mcp.Description("With commit_id, return logs of every package, not only failed ones"),
		),
		mcp.WithString("token",
			mcp.Description("Garnix JWT; defaults to GARNIX_JWT_TOKEN"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: human (default), json or plain"),
			mcp.Enum("json", "human", "plain"),
		),
	)

	validateTool := mcp.NewTool(ToolValidateToken,
		mcp.WithDescription("Check whether a Garnix JWT is accepted. Use it to confirm the server is ready to fetch builds."),
		mcp.WithString("token",
			mcp.Description("Garnix JWT; defaults to GARNIX_JWT_TOKEN"),
		),
	)

	healthTool := mcp.NewTool(ToolHealth,
		mcp.WithDescription("Report that the garnix-insights server is running."),
	)

	s.mcpServer.AddTool(buildStatusTool, s.handleBuildStatus)
	s.mcpServer.AddTool(buildLogsTool, s.handleBuildLogs)
	s.mcpServer.AddTool(validateTool, s.handleValidateToken)
	s.mcpServer.AddTool(healthTool, s.handleHealth)
}

// handleBuildStatus handles the garnix_build_status tool call.
func (s *Server) handleBuildStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := render.ParseFormat(request.GetString("format", ""), render.Structured)
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}

	res, err := s.dispatcher.BuildStatus(ctx, dispatch.Request{
		CommitID:     request.GetString("commit_id", ""),
		Format:       format,
		PayloadToken: request.GetString("token", ""),
		IncludeLogs:  true,
	})
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}

	if format == render.Structured {
		return mcp.NewToolResultStructured(res.Report, res.Output), nil
	}
	return mcp.NewToolResultText(res.Output), nil
}

// handleBuildLogs handles the garnix_build_logs tool call.
func (s *Server) handleBuildLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := render.ParseFormat(request.GetString("format", ""), render.Human)
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}

	res, err := s.dispatcher.Logs(ctx, dispatch.Request{
		BuildID:      request.GetString("build_id", ""),
		CommitID:     request.GetString("commit_id", ""),
		AllLogs:      request.GetBool("all", false),
		Format:       format,
		PayloadToken: request.GetString("token", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}
	return mcp.NewToolResultText(res.Output), nil
}

// handleValidateToken handles the garnix_validate_token tool call.
func (s *Server) handleValidateToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.dispatcher.ValidateToken(ctx, dispatch.Request{
		Format:       render.Structured,
		PayloadToken: request.GetString("token", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}
	return mcp.NewToolResultStructured(TokenValidity{Valid: res.Valid}, res.Output), nil
}

// handleHealth handles the garnix_health tool call.
func (s *Server) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := HealthInfo{Status: "healthy", Service: "garnix-insights", Version: s.version}
	b, err := json.Marshal(info)
	if err != nil {
		return mcp.NewToolResultError(encodeToolError(err)), nil
	}
	return mcp.NewToolResultStructured(info, string(b)), nil
}
