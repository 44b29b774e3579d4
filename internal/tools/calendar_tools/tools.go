package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zooyoda/workspace-mcp/internal/calendar"
	"github.com/zooyoda/workspace-mcp/internal/server"
	"github.com/zooyoda/workspace-mcp/internal/tools/common"
)

// RegisterCalendarTools registers the Calendar tools.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List events from the primary calendar within a time range. Event attachments are listed by filename."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to act as"),
		),
		mcp.WithString("timeMin",
			mcp.Description("Range start in RFC3339 (default: now)"),
		),
		mcp.WithString("timeMax",
			mcp.Description("Range end in RFC3339 (default: 7 days from now)"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text search over event fields"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default: 25)"),
		),
	)
	s.AddTool(listEventsTool, common.Instrumented("calendar_list_events", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListEvents(ctx, request, sc)
	}))

	getEventTool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get one calendar event by ID."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to act as"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event"),
		),
	)
	s.AddTool(getEventTool, common.Instrumented("calendar_get_event", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetEvent(ctx, request, sc)
	}))

	return nil
}

func clientForAccount(ctx context.Context, sc *server.ServerContext, account string) (*calendar.Client, error) {
	svc, err := sc.Clients().Calendar(ctx, account)
	if err != nil {
		return nil, err
	}
	return calendar.NewClient(svc, account, sc.AttachmentIndex(), sc.CleanupScheduler(), sc.Logger()), nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.AccountFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	now := time.Now()
	timeMin := now
	if v := common.StringArg(args, "timeMin", ""); v != "" {
		timeMin, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid timeMin: %v", err)), nil
		}
	}
	timeMax := now.Add(7 * 24 * time.Hour)
	if v := common.StringArg(args, "timeMax", ""); v != "" {
		timeMax, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid timeMax: %v", err)), nil
		}
	}

	client, err := clientForAccount(ctx, sc, account)
	if err != nil {
		return mcp.NewToolResultError(common.DescribeAuthError(err)), nil
	}

	events, err := client.ListEvents(ctx, timeMin, timeMax,
		common.StringArg(args, "query", ""),
		common.IntArg(args, "maxResults", 25))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
	}

	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.AccountFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	eventID := common.StringArg(args, "eventId", "")
	if eventID == "" {
		return mcp.NewToolResultError("eventId is required"), nil
	}

	client, err := clientForAccount(ctx, sc, account)
	if err != nil {
		return mcp.NewToolResultError(common.DescribeAuthError(err)), nil
	}

	event, err := client.GetEvent(ctx, eventID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get event: %v", err)), nil
	}

	out, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
