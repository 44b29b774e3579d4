// Package gmail_tools provides the MCP tools for searching Gmail and
// retrieving attachments by filename.
package gmail_tools
