// Package google defines the closed set of Google services this server
// integrates with, the OAuth scopes each one requires, and a cache of
// authenticated API clients keyed by account and service.
package google
