// Package logging provides slog attribute helpers used across the codebase.
//
// It defines well-known attribute keys so log output stays queryable, and
// PII-safe helpers for logging account emails and token material.
package logging
