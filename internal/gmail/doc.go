// Package gmail wraps the Gmail API for the AI-facing tools. Responses are
// reduced to summaries, and attachment identifiers are swapped for filenames
// backed by the shared metadata index.
package gmail
