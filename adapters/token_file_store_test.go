package adapters

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bambu-display/application"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewFileTokenStore(path)

	_, err := store.Load()
	require.ErrorIs(t, err, application.ErrTokenNotFound)

	token := application.AuthToken{
		Token:        "access",
		RefreshToken: "refresh",
		IssuedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(token))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, token.IssuedAt.Equal(loaded.IssuedAt))
	assert.True(t, token.ExpiresAt.Equal(loaded.ExpiresAt))
	assert.Equal(t, token.Token, loaded.Token)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileTokenStore_Overwrite(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))

	require.NoError(t, store.Save(application.AuthToken{Token: "first"}))
	require.NoError(t, store.Save(application.AuthToken{Token: "second"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Token)
}

func TestFileTokenStore_LegacyBareToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("legacy-token\n"), 0o600))

	loaded, err := NewFileTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, application.AuthToken{Token: "legacy-token"}, loaded)
}

func TestFileTokenStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewFileTokenStore(path).Load()
	require.ErrorIs(t, err, application.ErrTokenNotFound)
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileTokenStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, application.ErrTokenNotFound)
}

func TestFileTokenStore_SaveEmpty(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	require.Error(t, store.Save(application.AuthToken{}))
}
