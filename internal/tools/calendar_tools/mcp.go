package calendar_tools

import (
	"context"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/tools"
	"github.com/teemow/calcompanion/internal/tools/common"
)

// RegisterCalendarTools exposes the dispatcher's tools on an MCP server.
// Calls run for the user in the request context, or fallback when none is
// set.
func RegisterCalendarTools(s *mcpserver.MCPServer, d *tools.Dispatcher, fallback identity.User) {
	for _, desc := range d.Descriptors() {
		name := desc.Name
		s.AddTool(desc.Tool(), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleToolCall(ctx, d, name, request.GetArguments(), common.ResolveUser(ctx, fallback)), nil
		})
	}
}

func handleToolCall(ctx context.Context, d *tools.Dispatcher, name string, args map[string]any, user identity.User) *mcp.CallToolResult {
	result := d.Dispatch(ctx, tools.Invocation{
		Call: tools.Call{ID: uuid.NewString(), Name: name, Args: args},
		User: user,
	})
	if !result.OK() {
		return mcp.NewToolResultError(result.Text)
	}
	return mcp.NewToolResultText(result.Text)
}
