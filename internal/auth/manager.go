package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"golang.org/x/oauth2"
)

const (
	serviceName        = "batfiles"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager persists credentials and refreshes them against the OAuth endpoint
type Manager struct {
	storage     StorageBackend
	oauthConfig *oauth2.Config
	now         func() time.Time
}

// NewManager creates a manager over the given storage backend
func NewManager(storage StorageBackend, oauthConfig *oauth2.Config) *Manager {
	return &Manager{
		storage:     storage,
		oauthConfig: oauthConfig,
		now:         time.Now,
	}
}

// GetOAuthConfig returns the OAuth2 configuration
func (m *Manager) GetOAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// LoadCredentials loads stored credentials for a profile.
// A missing profile yields an AUTH_REQUIRED error that also matches ErrCredentialsNotFound.
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	data, err := m.storage.Load(profile)
	if errors.Is(err, ErrCredentialsNotFound) {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
			"No credentials found. Run 'batfiles auth login' first.").
			WithContext("profile", profile).
			WithContext("store", m.storage.Name()).
			Build()).WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	var expiry time.Time
	if stored.ExpiryDate != "" {
		expiry, err = time.Parse(time.RFC3339, stored.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry date: %w", err)
		}
	}

	return &types.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		ExpiryDate:   expiry,
		Scopes:       stored.Scopes,
		Type:         stored.Type,
	}, nil
}

// SaveCredentials saves credentials for a profile
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	stored := types.StoredCredentials{
		Profile:      profile,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Scopes:       creds.Scopes,
		Type:         creds.Type,
	}
	if !creds.ExpiryDate.IsZero() {
		stored.ExpiryDate = creds.ExpiryDate.Format(time.RFC3339)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return m.storage.Save(profile, data)
}

// DeleteCredentials removes credentials for a profile
func (m *Manager) DeleteCredentials(profile string) error {
	return m.storage.Delete(profile)
}

// NeedsRefresh checks if credentials need refreshing
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return needsRefresh(creds, m.now())
}

// RefreshCredentials exchanges the refresh token for a new access token.
// Google may omit the refresh token in the response; the old one is kept.
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthClientMissing,
			"OAuth client not configured").Build())
	}
	if creds.RefreshToken == "" {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthExpired,
			"Access token expired and no refresh token is available. Run 'batfiles auth login'.").Build())
	}

	// An empty access token forces the token source to hit the endpoint
	newToken, err := m.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	refreshed := tokenToCredentials(newToken, creds.Scopes)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	return refreshed, nil
}

// classifyRefreshError maps token endpoint failures onto the error taxonomy.
// Rejected grants are permanent; everything else is worth retrying.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.ErrorCode == "unauthorized_client" ||
			status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthExpired,
				"Token refresh rejected. Run 'batfiles auth login' to re-authenticate.").
				WithHTTPStatus(status).
				WithContext("oauthError", retrieveErr.ErrorCode).
				Build()).WithCause(err)
		}
		return utils.NewAppError(utils.NewServiceError(utils.ErrCodeNetworkError,
			"token endpoint unavailable").
			WithHTTPStatus(status).
			Build()).WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewAppError(utils.NewServiceError(utils.ErrCodeTimeout,
			"token refresh timed out").Build()).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return utils.NewAppError(utils.NewServiceError(utils.ErrCodeCancelled,
			"token refresh cancelled").Build()).WithCause(err)
	}
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeNetworkError,
		"token refresh failed: "+err.Error()).Build()).WithCause(err)
}

// ParseTokenJSON reads an inline token blob. Both the oauth2 field names
// (expiry) and the older oauth2client ones (token_expiry) are accepted.
func ParseTokenJSON(blob string) (*types.Credentials, error) {
	var raw struct {
		AccessToken  string   `json:"access_token"`
		RefreshToken string   `json:"refresh_token"`
		TokenType    string   `json:"token_type"`
		Expiry       string   `json:"expiry"`
		TokenExpiry  string   `json:"token_expiry"`
		Scopes       []string `json:"scopes"`
	}
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
			"OAUTH_TOKEN_JSON is not valid JSON").Build()).WithCause(err)
	}
	if raw.AccessToken == "" && raw.RefreshToken == "" {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
			"OAUTH_TOKEN_JSON has neither access_token nor refresh_token").Build())
	}

	creds := &types.Credentials{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		Scopes:       raw.Scopes,
		Type:         types.AuthTypeOAuth,
	}
	if len(creds.Scopes) == 0 {
		creds.Scopes = utils.ServiceScopes
	}
	expiry := raw.Expiry
	if expiry == "" {
		expiry = raw.TokenExpiry
	}
	if expiry != "" {
		t, err := parseExpiry(expiry)
		if err != nil {
			return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
				"OAUTH_TOKEN_JSON has an unreadable expiry").Build()).WithCause(err)
		}
		creds.ExpiryDate = t
	}
	return creds, nil
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// oauth2client wrote naive UTC timestamps
	return time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z"))
}

func tokenToCredentials(tok *oauth2.Token, scopes []string) *types.Credentials {
	return &types.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiryDate:   tok.Expiry,
		Scopes:       scopes,
		Type:         types.AuthTypeOAuth,
	}
}

func credentialsToToken(creds *types.Credentials) *oauth2.Token {
	tokenType := creds.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    tokenType,
		Expiry:       creds.ExpiryDate,
	}
}
