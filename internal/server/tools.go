package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"idcloud-mcp/internal/logging"
)

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	statusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Show the current authentication state: tenant, strategy and token validity"),
	)
	s.mcpServer.AddTool(statusTool, s.handleAuthStatus)

	loginTool := mcp.NewTool("auth_login",
		mcp.WithDescription("Force a fresh login with the configured credential strategy"),
	)
	s.mcpServer.AddTool(loginTool, s.handleAuthLogin)

	logoutTool := mcp.NewTool("auth_logout",
		mcp.WithDescription("Delete the stored credential and reset the session"),
	)
	s.mcpServer.AddTool(logoutTool, s.handleAuthLogout)

	queryTool := mcp.NewTool("idm_query",
		mcp.WithDescription("Query managed objects with an optional query filter"),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Managed object type, e.g. alpha_user"),
		),
		mcp.WithString("filter",
			mcp.Description("Query filter expression; defaults to matching everything"),
		),
	)
	s.mcpServer.AddTool(queryTool, s.handleIDMQuery)

	getTool := mcp.NewTool("idm_get",
		mcp.WithDescription("Fetch one managed object by ID"),
		mcp.WithString("object_type",
			mcp.Required(),
			mcp.Description("Managed object type, e.g. alpha_user"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Object ID"),
		),
	)
	s.mcpServer.AddTool(getTool, s.handleIDMGet)
}

func (s *MCPServer) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.authSvc.Status()
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleAuthLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.authSvc.Login(ctx)
	if err != nil {
		s.logger.Error("login failed", logging.Err(err))
		return mcp.NewToolResultError(fmt.Sprintf("login failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged in to %s, token valid until %s",
		rec.Tenant, rec.ExpiresAt.Format("2006-01-02 15:04:05 MST"))), nil
}

func (s *MCPServer) handleAuthLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.authSvc.Logout(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("logout failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Logged out, stored credential removed"), nil
}

func (s *MCPServer) handleIDMQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := request.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filter := ""
	if v, ok := request.GetArguments()["filter"].(string); ok {
		filter = v
	}

	result, err := s.idmClient.Query(ctx, objectType, filter)
	if err != nil {
		s.logger.Error("query failed", logging.Err(err))
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleIDMGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectType, err := request.RequireString("object_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	obj, err := s.idmClient.Get(ctx, objectType, id)
	if err != nil {
		s.logger.Error("get failed", logging.Err(err))
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
