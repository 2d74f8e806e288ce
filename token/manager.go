package token

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-rollcall/credentials"
	"github.com/jrsteele09/go-rollcall/internal/config"
	apperrors "github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// offlineAccessParam asks the provider for a refresh token alongside the access token.
const offlineAccessParam = "token_access_type"

// State is a point-in-time view of the stored credential.
type State struct {
	Authenticated bool      `json:"authenticated"`
	CanRefresh    bool      `json:"can_refresh"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Account       string    `json:"account,omitempty"`
}

// Manager owns the OAuth2 PKCE lifecycle of a public client: authorization
// redirect, code exchange, silent refresh and expiry checks. Durable values
// (access/refresh token, expiry) live in one store; the PKCE verifier lives
// in a short-lived store keyed by the flow's state parameter.
type Manager struct {
	oauth      *oauth2.Config
	durable    credentials.Store
	ephemeral  credentials.Store
	config     config.OAuthConfig
	idVerifier *oidc.IDTokenVerifier
	revokeURL  string
	httpClient *http.Client
	nowTime    func() time.Time
	logger     zerolog.Logger

	mu sync.Mutex // serializes exchanges and refreshes
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithHTTPClient sets the client used for token and revocation requests
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithDiscovery replaces the configured endpoints with those of a discovered
// OIDC provider, when it has any, and verifies ID tokens returned by the code
// exchange.
func WithDiscovery(d *Discovery) ManagerOption {
	return func(m *Manager) {
		if d == nil {
			return
		}
		if d.Endpoint.TokenURL != "" {
			m.oauth.Endpoint = d.Endpoint
		}
		m.idVerifier = d.Verifier
	}
}

// NewManager creates a token manager for a public PKCE client.
func NewManager(cfg config.OAuthConfig, durable, ephemeral credentials.Store, options ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("[NewManager] config is required")
	}
	if cfg.GetClientID() == "" {
		return nil, errors.New("[NewManager] OAuth client ID is required")
	}
	if durable == nil {
		return nil, errors.New("[NewManager] durable credential store is required")
	}
	if ephemeral == nil {
		return nil, errors.New("[NewManager] ephemeral credential store is required")
	}

	m := &Manager{
		oauth: &oauth2.Config{
			ClientID: cfg.GetClientID(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.GetAuthURL(),
				TokenURL:  cfg.GetTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.GetRedirectURL(),
			Scopes:      cfg.GetScopes(),
		},
		durable:    durable,
		ephemeral:  ephemeral,
		config:     cfg,
		revokeURL:  cfg.GetRevokeURL(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nowTime:    time.Now,
		logger:     log.Logger,
	}

	for _, opt := range options {
		opt(m)
	}

	// Public clients authenticate with client_id in the body, never basic auth.
	m.oauth.Endpoint.AuthStyle = oauth2.AuthStyleInParams

	return m, nil
}

// IsAuthenticated reports whether a stored access token is valid for at least
// the expiry buffer.
func (m *Manager) IsAuthenticated() bool {
	if tok, ok := m.durable.Get(credentials.KeyAccessToken); !ok || tok == "" {
		return false
	}
	expiresAt, ok := m.expiresAt()
	if !ok {
		return false
	}
	return m.nowTime().Before(expiresAt.Add(-m.config.GetExpiryBuffer()))
}

// HasRefreshCapability reports whether a refresh token is stored.
func (m *Manager) HasRefreshCapability() bool {
	rt, ok := m.durable.Get(credentials.KeyRefreshToken)
	return ok && rt != ""
}

// Account returns the account email captured from a verified ID token, if any.
func (m *Manager) Account() string {
	account, _ := m.durable.Get(credentials.KeyAccount)
	return account
}

// State returns the current credential state without any network call.
func (m *Manager) State() State {
	expiresAt, _ := m.expiresAt()
	return State{
		Authenticated: m.IsAuthenticated(),
		CanRefresh:    m.HasRefreshCapability(),
		ExpiresAt:     expiresAt,
		Account:       m.Account(),
	}
}

// Initialize runs on page load. query holds the request's query parameters;
// when they carry an authorization code the pending flow is completed.
// Otherwise the stored credential is used, refreshing silently if needed.
// A failed silent refresh clears all credentials and reports unauthenticated.
func (m *Manager) Initialize(ctx context.Context, query url.Values) (bool, error) {
	state := query.Get("state")

	if providerErr := query.Get("error"); providerErr != "" {
		if state != "" {
			_ = m.ephemeral.Remove(credentials.FlowKey(credentials.KeyPKCEVerifier, state))
		}
		return false, errors.Wrapf(apperrors.ErrAuthorizationDenied, "%s %s", providerErr, query.Get("error_description"))
	}

	if code := query.Get("code"); code != "" {
		if err := m.exchange(ctx, code, state); err != nil {
			return false, err
		}
		return true, nil
	}

	if m.IsAuthenticated() {
		return true, nil
	}

	if m.HasRefreshCapability() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, err := m.refreshLocked(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Silent refresh failed, interactive authorization required")
			return false, nil
		}
		return true, nil
	}

	return false, nil
}

// StartAuthorization begins phase one of the PKCE flow. It stores a fresh
// verifier under a new state value and returns the provider URL the browser
// must be sent to. The flow resumes in Initialize when the provider redirects
// back with a code.
func (m *Manager) StartAuthorization() (string, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	if err := m.ephemeral.Set(credentials.FlowKey(credentials.KeyPKCEVerifier, state), verifier); err != nil {
		return "", errors.Wrap(err, "[Manager.StartAuthorization] failed to store verifier")
	}

	m.logger.Debug().Str("state", state).Msg("Authorization started")
	return m.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam(offlineAccessParam, "offline"),
	), nil
}

// EnsureFreshCredential returns an access token with at least the expiry
// buffer of validity left, refreshing first when necessary. Call it before
// every remote store operation.
func (m *Manager) EnsureFreshCredential(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsAuthenticated() {
		tok, _ := m.durable.Get(credentials.KeyAccessToken)
		return tok, nil
	}

	if !m.HasRefreshCapability() {
		if tok, ok := m.durable.Get(credentials.KeyAccessToken); ok && tok != "" {
			return "", apperrors.ErrAuthorizationExpired
		}
		return "", apperrors.ErrUnauthenticated
	}

	return m.refreshLocked(ctx)
}

// ForceRefresh obtains a new access token even if the stored one looks valid.
// Used when the remote store rejected the current token.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.HasRefreshCapability() {
		m.clearLocked()
		return "", apperrors.ErrAuthorizationExpired
	}
	return m.refreshLocked(ctx)
}

// Disconnect revokes the access token at the provider (best effort) and
// erases every stored credential.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.durable.Get(credentials.KeyAccessToken); ok && tok != "" && m.revokeURL != "" {
		if err := m.revoke(ctx, tok); err != nil {
			m.logger.Warn().Err(err).Msg("Token revocation failed")
		}
	}
	return m.clearLocked()
}

// exchange completes phase two of the PKCE flow. The verifier is removed
// whatever the outcome, so a failed exchange cannot be replayed.
func (m *Manager) exchange(ctx context.Context, code, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == "" {
		return apperrors.ErrMissingVerifier
	}
	key := credentials.FlowKey(credentials.KeyPKCEVerifier, state)
	defer func() {
		_ = m.ephemeral.Remove(key)
	}()

	verifier, ok := m.ephemeral.Get(key)
	if !ok || verifier == "" {
		return apperrors.ErrMissingVerifier
	}

	tok, err := m.oauth.Exchange(m.httpContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return errors.Wrap(err, "[Manager.exchange] code exchange failed")
	}

	lifetime := m.config.GetDefaultAccessTokenExpiry()
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}

	if err := m.persist(tok.AccessToken, tok.RefreshToken, m.nowTime().Add(lifetime)); err != nil {
		return err
	}
	if account := m.accountFromIDToken(ctx, tok); account != "" {
		if err := m.durable.Set(credentials.KeyAccount, account); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to store account")
		}
	} else {
		_ = m.durable.Remove(credentials.KeyAccount)
	}

	m.logger.Info().Time("expires_at", m.nowTime().Add(lifetime)).Bool("refreshable", tok.RefreshToken != "").Msg("Authorization code exchanged")
	return nil
}

// refreshLocked trades the stored refresh token for a new access token. The
// provider does not report an expiry on refresh, so the default lifetime is
// applied. On failure every credential is erased. Caller holds mu.
func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	refreshToken, ok := m.durable.Get(credentials.KeyRefreshToken)
	if !ok || refreshToken == "" {
		return "", apperrors.ErrUnauthenticated
	}

	tok, err := m.oauth.TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if clearErr := m.clearLocked(); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear credentials after refresh failure")
		}
		return "", errors.Wrapf(apperrors.ErrAuthorizationExpired, "refresh failed: %v", err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	expiresAt := m.nowTime().Add(m.config.GetDefaultAccessTokenExpiry())
	if err := m.persist(tok.AccessToken, tok.RefreshToken, expiresAt); err != nil {
		return "", err
	}

	m.logger.Debug().Time("expires_at", expiresAt).Msg("Access token refreshed")
	return tok.AccessToken, nil
}

func (m *Manager) persist(accessToken, refreshToken string, expiresAt time.Time) error {
	if err := m.durable.Set(credentials.KeyAccessToken, accessToken); err != nil {
		return errors.Wrap(err, "failed to store access token")
	}
	if refreshToken != "" {
		if err := m.durable.Set(credentials.KeyRefreshToken, refreshToken); err != nil {
			return errors.Wrap(err, "failed to store refresh token")
		}
	} else if err := m.durable.Remove(credentials.KeyRefreshToken); err != nil {
		return errors.Wrap(err, "failed to remove stale refresh token")
	}
	if err := m.durable.Set(credentials.KeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		return errors.Wrap(err, "failed to store expiry")
	}
	return nil
}

// clearLocked erases every durable credential. Caller holds mu.
func (m *Manager) clearLocked() error {
	var firstErr error
	for _, key := range credentials.DurableKeys {
		if err := m.durable.Remove(key); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to remove %s", key)
		}
	}
	m.logger.Info().Msg("Credentials cleared")
	return firstErr
}

func (m *Manager) expiresAt() (time.Time, bool) {
	raw, ok := m.durable.Get(credentials.KeyExpiresAt)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (m *Manager) accountFromIDToken(ctx context.Context, tok *oauth2.Token) string {
	if m.idVerifier == nil {
		return ""
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return ""
	}
	idToken, err := m.idVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("ID token verification failed")
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to extract ID token claims")
		return ""
	}
	return claims.Email
}

func (m *Manager) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create revoke request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "revoke request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
