package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/carebridge/shift-cascade/internal/config"
)

const (
	tokenDirName   = ".shift-cascade/tokens"
	tokenFilePerms = 0600 // Read/write for owner only
)

// ScopeGmailSend is the only Google API scope the service needs
const ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"

// GetOAuthConfig creates an OAuth2 config from the OAuth client
// configuration, requesting the gmail.send scope
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	oauthConfigJSON, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(oauthConfigJSON, ScopeGmailSend)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	return googleConfig, nil
}

// LoadToken reads the persisted OAuth token for the given environment.
// Tokens are provisioned out of band (the interactive consent flow is not
// part of this service) and refreshed automatically by the client's
// TokenSource as long as the refresh token stays valid.
func LoadToken(env string) (*oauth2.Token, error) {
	path, err := tokenPath(env)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}

	if token.RefreshToken == "" && !token.Valid() {
		return nil, fmt.Errorf("token for env %s is expired and has no refresh token", env)
	}

	return &token, nil
}

// SaveToken persists an OAuth token for the given environment
func SaveToken(env string, token *oauth2.Token) error {
	path, err := tokenPath(env)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(path, data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", path, err)
	}

	return nil
}

func tokenPath(env string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, tokenDirName, fmt.Sprintf("%s.json", env)), nil
}
