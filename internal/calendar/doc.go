// Package calendar wraps the Calendar API for the AI-facing tools, with
// event attachments routed through the shared metadata index.
package calendar
