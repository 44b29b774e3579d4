package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
	"github.com/zooyoda/workspace-mcp/internal/logging"
	"github.com/zooyoda/workspace-mcp/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Instrumented wraps a tool handler with a span, invocation metrics and a
// structured log line.
//
// Usage:
//
//	s.AddTool(myTool, common.Instrumented("my_tool", sc, handler))
func Instrumented(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		account := StringArg(request.GetArguments(), "account", "")

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, logging.AnonymizeEmail(account), duration)
		sc.Logger().Debug("tool invocation",
			logging.Tool(toolName),
			logging.Status(status),
			logging.UserHash(account),
			logging.Err(err))

		return result, err
	}
}
