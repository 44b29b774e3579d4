package gmail_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zooyoda/workspace-mcp/internal/gmail"
	"github.com/zooyoda/workspace-mcp/internal/server"
	"github.com/zooyoda/workspace-mcp/internal/tools/common"
)

// RegisterGmailTools registers the Gmail tools.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	searchTool := mcp.NewTool("gmail_search_messages",
		mcp.WithDescription("Search Gmail messages with a Gmail query string. Attachments are listed by filename; use gmail_get_attachment to download one."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to act as"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query, e.g. 'from:alice has:attachment'"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of messages to return (default: 10)"),
		),
	)
	s.AddTool(searchTool, common.Instrumented("gmail_search_messages", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearchMessages(ctx, request, sc)
	}))

	listAttachmentsTool := mcp.NewTool("gmail_list_attachments",
		mcp.WithDescription("List the attachments of a Gmail message by filename."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to act as"),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
	)
	s.AddTool(listAttachmentsTool, common.Instrumented("gmail_list_attachments", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListAttachments(ctx, request, sc)
	}))

	getAttachmentTool := mcp.NewTool("gmail_get_attachment",
		mcp.WithDescription("Download an attachment from a Gmail message by filename."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to act as"),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("The attachment filename as listed by gmail_list_attachments"),
		),
		mcp.WithString("encoding",
			mcp.Description("Output encoding: 'text' for UTF-8 content, 'base64' otherwise (default: base64)"),
		),
	)
	s.AddTool(getAttachmentTool, common.Instrumented("gmail_get_attachment", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetAttachment(ctx, request, sc)
	}))

	return nil
}

// clientForAccount builds a Gmail wrapper over the cached authenticated
// service for the account.
func clientForAccount(ctx context.Context, sc *server.ServerContext, account string) (*gmail.Client, error) {
	svc, err := sc.Clients().Gmail(ctx, account)
	if err != nil {
		return nil, err
	}
	return gmail.NewClient(svc, account, sc.AttachmentIndex(), sc.CleanupScheduler(), sc.Logger()), nil
}

func handleSearchMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.AccountFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query := common.StringArg(args, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	maxResults := common.IntArg(args, "maxResults", 10)

	client, err := clientForAccount(ctx, sc, account)
	if err != nil {
		return mcp.NewToolResultError(common.DescribeAuthError(err)), nil
	}

	messages, err := client.SearchMessages(ctx, query, maxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	out, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleListAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.AccountFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	messageID := common.StringArg(args, "messageId", "")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	client, err := clientForAccount(ctx, sc, account)
	if err != nil {
		return mcp.NewToolResultError(common.DescribeAuthError(err)), nil
	}

	summary, err := client.GetMessage(ctx, messageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load message: %v", err)), nil
	}

	if len(summary.Attachments) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Message %s has no attachments.", messageID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Attachments in message %s:\n- %s",
		messageID, strings.Join(summary.Attachments, "\n- "))), nil
}

func handleGetAttachment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.AccountFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	messageID := common.StringArg(args, "messageId", "")
	filename := common.StringArg(args, "filename", "")
	if messageID == "" || filename == "" {
		return mcp.NewToolResultError("messageId and filename are required"), nil
	}
	encoding := common.StringArg(args, "encoding", "base64")

	client, err := clientForAccount(ctx, sc, account)
	if err != nil {
		return mcp.NewToolResultError(common.DescribeAuthError(err)), nil
	}

	data, meta, err := client.GetAttachment(ctx, messageID, filename)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get attachment: %v", err)), nil
	}

	switch encoding {
	case "text":
		if !utf8.Valid(data) {
			return mcp.NewToolResultError(fmt.Sprintf("attachment %q is not valid UTF-8 text; use encoding 'base64'", filename)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	case "base64":
		return mcp.NewToolResultText(fmt.Sprintf("%s (%s, %d bytes, base64):\n%s",
			meta.Filename, meta.MimeType, len(data), base64.StdEncoding.EncodeToString(data))), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid encoding %q, must be 'text' or 'base64'", encoding)), nil
	}
}
