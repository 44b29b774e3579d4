// Package cmd implements the command line interface for workspace-mcp.
package cmd
