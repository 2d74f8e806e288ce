package config

import (
	"strings"
	"time"
)

const (
	dropboxAuthURL   = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL  = "https://api.dropboxapi.com/oauth2/token"
	dropboxRevokeURL = "https://api.dropboxapi.com/2/auth/token/revoke"
)

type OAuthConfig interface {
	GetClientID() string
	GetAuthURL() string
	GetTokenURL() string
	GetRevokeURL() string
	GetOIDCIssuer() string
	GetRedirectURL() string
	GetScopes() []string
	GetExpiryBuffer() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetVerifierTTL() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetClientID is the app key registered with the storage provider. PKCE
// means no client secret is needed.
func (OAuth) GetClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", "")
}

func (OAuth) GetAuthURL() string {
	return GetEnv("OAUTH_AUTH_URL", dropboxAuthURL)
}

func (OAuth) GetTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", dropboxTokenURL)
}

func (OAuth) GetRevokeURL() string {
	return GetEnv("OAUTH_REVOKE_URL", dropboxRevokeURL)
}

// GetOIDCIssuer enables endpoint discovery and ID token verification when set
// (e.g., "https://www.dropbox.com").
func (OAuth) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OAuth) GetRedirectURL() string {
	return GetEnv("OAUTH_REDIRECT_URL", strings.TrimSuffix(EnvVars{}.GetBaseURL(), "/")+"/")
}

func (OAuth) GetScopes() []string {
	scopes := GetEnv("OAUTH_SCOPES", "")
	if scopes == "" {
		return nil
	}
	return strings.Fields(scopes)
}

// GetExpiryBuffer is how long before expiry an access token stops being used.
func (OAuth) GetExpiryBuffer() time.Duration {
	return 5 * time.Minute
}

// GetDefaultAccessTokenExpiry applies when the provider omits expires_in and
// after every refresh.
func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 4 * time.Hour
}

func (OAuth) GetVerifierTTL() time.Duration {
	return 10 * time.Minute
}
