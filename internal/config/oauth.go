package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OAuthClientConfig mirrors the "installed application" credentials JSON
// downloaded from the Google Cloud console. Only the fields the notifier's
// authorization flow consumes are required; the others ride along so the file
// round-trips unchanged into google.ConfigFromJSON.
type OAuthClientConfig struct {
	Installed OAuthInstalled `json:"installed" validate:"required"`
}

// OAuthInstalled is the "installed" section of the credentials file.
type OAuthInstalled struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	AuthURI      string   `json:"auth_uri" validate:"required,url"`
	TokenURI     string   `json:"token_uri" validate:"required,url"`
	RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`

	ProjectID               string `json:"project_id,omitempty"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url,omitempty"`
}

// LoadOAuthClientWithEnv loads the notifier's OAuth client credentials,
// resolving oauthClient.json (or oauthClient.<env>.json) with the same
// cwd-then-home lookup the main config uses.
func LoadOAuthClientWithEnv(env string) (*OAuthClientConfig, error) {
	name := "oauthClient.json"
	if env != "" {
		name = "oauthClient." + env + ".json"
	}

	if _, err := os.Stat(name); err == nil {
		return LoadOAuthClientFromPath(name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	path := filepath.Join(home, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("oauth client file %s not found in current directory or home directory", name)
	}
	return LoadOAuthClientFromPath(path)
}

// LoadOAuthClientFromPath loads and validates credentials from a specific file.
func LoadOAuthClientFromPath(path string) (*OAuthClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client file: %w", err)
	}

	cfg := &OAuthClientConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse oauth client file: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("oauth client validation failed: %w", err)
	}
	return cfg, nil
}
