package types

import "time"

// AuthType identifies how a credential was obtained
type AuthType string

const (
	AuthTypeOAuth AuthType = "oauth"
)

// Credentials is the in-memory form of an OAuth credential
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiryDate   time.Time
	Scopes       []string
	Type         AuthType
}

// StoredCredentials is the persisted form of Credentials
type StoredCredentials struct {
	Profile      string   `json:"profile"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType,omitempty"`
	ExpiryDate   string   `json:"expiryDate"`
	Scopes       []string `json:"scopes"`
	Type         AuthType `json:"type"`
}
