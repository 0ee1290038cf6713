package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOAuthFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oauthClient.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadOAuthClientFromPath_Valid(t *testing.T) {
	path := writeOAuthFile(t, `{
		"installed": {
			"client_id": "client-1",
			"client_secret": "secret-1",
			"auth_uri": "https://accounts.google.com/o/oauth2/auth",
			"token_uri": "https://oauth2.googleapis.com/token",
			"redirect_uris": ["http://localhost"]
		}
	}`)

	cfg, err := LoadOAuthClientFromPath(path)

	require.NoError(t, err)
	assert.Equal(t, "client-1", cfg.Installed.ClientID)
	assert.Equal(t, []string{"http://localhost"}, cfg.Installed.RedirectURIs)
}

func TestLoadOAuthClientFromPath_MissingSecret(t *testing.T) {
	path := writeOAuthFile(t, `{
		"installed": {
			"client_id": "client-1",
			"auth_uri": "https://accounts.google.com/o/oauth2/auth",
			"token_uri": "https://oauth2.googleapis.com/token",
			"redirect_uris": ["http://localhost"]
		}
	}`)

	_, err := LoadOAuthClientFromPath(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth client validation failed")
}

func TestLoadOAuthClientFromPath_FileNotFound(t *testing.T) {
	_, err := LoadOAuthClientFromPath(filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read oauth client file")
}
