// Package google_tools provides the MCP tools for account management and the
// OAuth authorization flow.
package google_tools
