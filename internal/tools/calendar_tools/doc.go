// Package calendar_tools provides the MCP tools for listing calendar events,
// with event attachments routed through the shared metadata index.
package calendar_tools
