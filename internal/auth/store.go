package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zooyoda/workspace-mcp/internal/logging"
)

const tokenFileSuffix = ".token.json"

// TokenStore persists one credential record per account email as a JSON file
// at <dir>/<sanitized-email>.token.json. It is pure storage with no renewal
// policy.
type TokenStore struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
}

// NewTokenStore creates a token store rooted at dir, creating the directory
// if needed.
func NewTokenStore(dir string, logger *slog.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return &TokenStore{dir: dir, logger: logger}, nil
}

// Save writes the credential record for an account, replacing any previous
// record. The file is written with owner-only permissions.
func (s *TokenStore) Save(email string, record *CredentialRecord) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.tokenPath(email), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file for %s: %w", email, err)
	}

	s.logger.Debug("saved credential record",
		logging.UserHash(email),
		slog.Time("expiry", record.Expiry()))
	return nil
}

// Load reads the credential record for an account. Returns
// ErrCredentialNotFound when no record exists.
func (s *TokenStore) Load(email string) (*CredentialRecord, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tokenPath(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s", ErrCredentialNotFound, email)
		}
		return nil, fmt.Errorf("failed to read token file for %s: %w", email, err)
	}

	var record CredentialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token file for %s: %w", email, err)
	}

	return &record, nil
}

// Delete removes the credential record for an account. Deleting a record is
// an explicit account-removal action; records are never deleted automatically.
func (s *TokenStore) Delete(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.tokenPath(email)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w for %s", ErrCredentialNotFound, email)
		}
		return fmt.Errorf("failed to delete token file for %s: %w", email, err)
	}

	s.logger.Info("deleted credential record", logging.UserHash(email))
	return nil
}

// Has reports whether a credential record exists for an account.
func (s *TokenStore) Has(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.tokenPath(email))
	return err == nil
}

// List returns the account names that have stored credentials, derived from
// the sanitized token filenames.
func (s *TokenStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials directory: %w", err)
	}

	var accounts []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, tokenFileSuffix) {
			continue
		}
		accounts = append(accounts, strings.TrimSuffix(name, tokenFileSuffix))
	}
	return accounts, nil
}

func (s *TokenStore) tokenPath(email string) string {
	return filepath.Join(s.dir, SanitizeEmail(email)+tokenFileSuffix)
}

// SanitizeEmail maps an account email to a filesystem-safe name. Path
// separators and any character outside a conservative allowlist are replaced
// with underscores.
func SanitizeEmail(email string) string {
	var b strings.Builder
	b.Grow(len(email))
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '@' || r == '.' || r == '-' || r == '_' || r == '+':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
