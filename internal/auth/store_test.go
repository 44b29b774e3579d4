package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *TokenStore {
	t.Helper()
	store, err := NewTokenStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func testRecord(expiry time.Time) *CredentialRecord {
	return &CredentialRecord{
		AccessToken:        "access-token",
		RefreshToken:       "refresh-token",
		Scope:              []string{"https://www.googleapis.com/auth/gmail.readonly"},
		TokenType:          "Bearer",
		ExpiryEpochMs:      expiry.UnixMilli(),
		LastRefreshEpochMs: time.Now().UnixMilli(),
	}
}

func TestTokenStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	record := testRecord(time.Now().Add(time.Hour))

	require.NoError(t, store.Save("user@example.com", record))

	loaded, err := store.Load("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestTokenStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("nobody@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestTokenStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(time.Hour))))

	path := filepath.Join(dir, "user@example.com.token.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err, "token file should live at <dir>/<sanitized-email>.token.json")

	// Persisted fields match the record verbatim
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "access-token", raw["accessToken"])
	assert.Equal(t, "refresh-token", raw["refreshToken"])
	assert.Contains(t, raw, "expiryEpochMs")
	assert.Contains(t, raw, "tokenType")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTokenStore_DeleteAndHas(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.Has("user@example.com"))
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(time.Hour))))
	assert.True(t, store.Has("user@example.com"))

	require.NoError(t, store.Delete("user@example.com"))
	assert.False(t, store.Has("user@example.com"))

	err := store.Delete("user@example.com")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestTokenStore_List(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("a@example.com", testRecord(time.Now().Add(time.Hour))))
	require.NoError(t, store.Save("b@example.com", testRecord(time.Now().Add(time.Hour))))

	accounts, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, accounts)
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "plain email", email: "user@example.com", want: "user@example.com"},
		{name: "plus address", email: "user+tag@example.com", want: "user+tag@example.com"},
		{name: "path traversal", email: "../../etc/passwd", want: ".._.._etc_passwd"},
		{name: "slashes", email: "a/b\\c@example.com", want: "a_b_c@example.com"},
		{name: "spaces", email: "a b@example.com", want: "a_b@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeEmail(tt.email))
		})
	}
}
