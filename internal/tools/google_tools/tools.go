package google_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/server"
	"github.com/zooyoda/workspace-mcp/internal/tools/common"
)

// RegisterGoogleTools registers the account and authorization tools.
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	authorizeTool := mcp.NewTool("google_authorize",
		mcp.WithDescription("Start the OAuth authorization flow for a Google account. Returns a URL the user must open in a browser; the credential is saved automatically once they approve access."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to authorize"),
		),
	)
	s.AddTool(authorizeTool, common.Instrumented("google_authorize", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAuthorize(ctx, request, sc)
	}))

	authStatusTool := mcp.NewTool("google_auth_status",
		mcp.WithDescription("Check the credential status of a Google account, or list all known accounts when no account is given. Refreshes the access token if it is about to expire."),
		mcp.WithString("account",
			mcp.Description("The Google account email to check. Omit to list all accounts."),
		),
	)
	s.AddTool(authStatusTool, common.Instrumented("google_auth_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAuthStatus(ctx, request, sc)
	}))

	removeAccountTool := mcp.NewTool("google_remove_account",
		mcp.WithDescription("Delete the stored credential for a Google account and drop its cached API clients."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The Google account email to remove"),
		),
	)
	s.AddTool(removeAccountTool, common.Instrumented("google_remove_account", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRemoveAccount(ctx, request, sc)
	}))

	return nil
}

func handleAuthorize(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account, err := common.AccountFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	url := sc.AuthFlow().Begin(sc.Context(), account)

	result := fmt.Sprintf(`To authorize %s:

1. Open this URL in a browser:
   %s

2. Sign in with %s and grant access.

The credential is saved automatically after approval. Use google_auth_status to confirm.`, account, url, account)

	return mcp.NewToolResultText(result), nil
}

func handleAuthStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account := common.StringArg(args, "account", "")
	if account == "" {
		accounts, err := sc.TokenStore().List()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list accounts: %v", err)), nil
		}
		if len(accounts) == 0 {
			return mcp.NewToolResultText("No Google accounts are authorized yet. Use google_authorize to add one."), nil
		}
		return mcp.NewToolResultText("Authorized accounts:\n- " + strings.Join(accounts, "\n- ")), nil
	}

	res := sc.RenewalPolicy().Resolve(ctx, account)

	status := map[string]interface{}{
		"account": account,
		"status":  string(res.Status),
		"usable":  res.Status.Usable(),
	}
	if res.Status == auth.StatusRefreshFailed {
		status["canRetry"] = res.CanRetry
	}
	if res.Credential != nil {
		status["expiry"] = res.Credential.Expiry().UTC().Format("2006-01-02T15:04:05Z")
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleRemoveAccount(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account, err := common.AccountFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.TokenStore().Delete(account); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove account %s: %v", account, err)), nil
	}
	sc.Clients().Invalidate(account)

	return mcp.NewToolResultText(fmt.Sprintf("Removed stored credential for %s.", account)), nil
}
