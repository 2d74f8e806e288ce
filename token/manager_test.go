package token_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-rollcall/credentials"
	apperrors "github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/token"
	"github.com/stretchr/testify/require"
)

type testOAuthConfig struct {
	server *httptest.Server
}

func (c testOAuthConfig) GetClientID() string                        { return "rollcall-test" }
func (c testOAuthConfig) GetAuthURL() string                         { return c.server.URL + "/authorize" }
func (c testOAuthConfig) GetTokenURL() string                        { return c.server.URL + "/token" }
func (c testOAuthConfig) GetRevokeURL() string                       { return c.server.URL + "/revoke" }
func (c testOAuthConfig) GetOIDCIssuer() string                      { return "" }
func (c testOAuthConfig) GetRedirectURL() string                     { return "http://localhost:8080/" }
func (c testOAuthConfig) GetScopes() []string                        { return nil }
func (c testOAuthConfig) GetExpiryBuffer() time.Duration             { return 5 * time.Minute }
func (c testOAuthConfig) GetDefaultAccessTokenExpiry() time.Duration { return 4 * time.Hour }
func (c testOAuthConfig) GetVerifierTTL() time.Duration              { return 10 * time.Minute }

// fakeProvider is a minimal PKCE-checking OAuth2 token endpoint.
type fakeProvider struct {
	mu           sync.Mutex
	challenges   map[string]string // code -> S256 challenge
	expiresIn    int
	noRefresh    bool
	failRefresh  bool
	refreshCalls int
	revoked      []string
	idToken      string
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{challenges: make(map[string]string), expiresIn: 14400}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", fp.handleToken)
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.revoked = append(fp.revoked, r.Header.Get("Authorization"))
		fp.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fp, server
}

func (fp *fakeProvider) expectCode(code, challenge string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.challenges[code] = challenge
}

func (fp *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if r.PostForm.Get("client_id") != "rollcall-test" {
		writeOAuthError(w, "invalid_client")
		return
	}

	resp := map[string]any{"token_type": "bearer"}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		challenge, ok := fp.challenges[r.PostForm.Get("code")]
		if !ok {
			writeOAuthError(w, "invalid_grant")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			writeOAuthError(w, "invalid_grant")
			return
		}
		delete(fp.challenges, r.PostForm.Get("code"))
		resp["access_token"] = "access-1"
		if fp.expiresIn > 0 {
			resp["expires_in"] = fp.expiresIn
		}
		if !fp.noRefresh {
			resp["refresh_token"] = "refresh-1"
		}
		if fp.idToken != "" {
			resp["id_token"] = fp.idToken
		}
	case "refresh_token":
		fp.refreshCalls++
		if fp.failRefresh || r.PostForm.Get("refresh_token") != "refresh-1" {
			writeOAuthError(w, "invalid_grant")
			return
		}
		resp["access_token"] = "access-" + strconv.Itoa(fp.refreshCalls+1)
	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

type managerFixture struct {
	provider  *fakeProvider
	manager   *token.Manager
	durable   *credentials.MemoryStore
	ephemeral *credentials.MemoryStore
	now       *time.Time
}

func newManagerFixture(t *testing.T, options ...token.ManagerOption) *managerFixture {
	t.Helper()
	fp, server := newFakeProvider(t)

	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	durable := credentials.NewMemoryStore(0)
	ephemeral := credentials.NewMemoryStore(10*time.Minute, credentials.WithNowTime(nowFn))

	options = append([]token.ManagerOption{
		token.WithNowTime(nowFn),
		token.WithHTTPClient(server.Client()),
	}, options...)
	m, err := token.NewManager(testOAuthConfig{server: server}, durable, ephemeral, options...)
	require.NoError(t, err)

	return &managerFixture{provider: fp, manager: m, durable: durable, ephemeral: ephemeral, now: &now}
}

// authorize runs both phases of the PKCE flow against the fake provider.
func (f *managerFixture) authorize(t *testing.T) {
	t.Helper()
	authURL, err := f.manager.StartAuthorization()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "offline", q.Get("token_access_type"))
	require.Equal(t, "code", q.Get("response_type"))

	f.provider.expectCode("code-1", q.Get("code_challenge"))

	ok, err := f.manager.Initialize(context.Background(), url.Values{"code": {"code-1"}, "state": {q.Get("state")}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewManager_Validation(t *testing.T) {
	_, server := newFakeProvider(t)
	store := credentials.NewMemoryStore(0)

	_, err := token.NewManager(nil, store, store)
	require.Error(t, err)

	_, err = token.NewManager(testOAuthConfig{server: server}, nil, store)
	require.Error(t, err)

	_, err = token.NewManager(testOAuthConfig{server: server}, store, nil)
	require.Error(t, err)
}

func TestManager_CodeExchange(t *testing.T) {
	f := newManagerFixture(t)
	f.authorize(t)

	require.True(t, f.manager.IsAuthenticated())
	require.True(t, f.manager.HasRefreshCapability())
	require.Zero(t, f.ephemeral.Len(), "verifier must not outlive the flow")

	at, _ := f.durable.Get(credentials.KeyAccessToken)
	require.Equal(t, "access-1", at)
	exp, _ := f.durable.Get(credentials.KeyExpiresAt)
	require.Equal(t, strconv.FormatInt(f.now.Add(4*time.Hour).UnixMilli(), 10), exp)
}

func TestManager_CodeExchangeDefaultExpiry(t *testing.T) {
	f := newManagerFixture(t)
	f.provider.expiresIn = 0
	f.provider.noRefresh = true
	f.authorize(t)

	require.False(t, f.manager.HasRefreshCapability())
	state := f.manager.State()
	require.True(t, state.Authenticated)
	require.Equal(t, f.now.Add(4*time.Hour).UnixMilli(), state.ExpiresAt.UnixMilli())
}

func TestManager_InitializeErrors(t *testing.T) {
	t.Run("missing verifier", func(t *testing.T) {
		f := newManagerFixture(t)
		ok, err := f.manager.Initialize(context.Background(), url.Values{"code": {"code-1"}, "state": {"unknown"}})
		require.False(t, ok)
		require.ErrorIs(t, err, apperrors.ErrMissingVerifier)
	})

	t.Run("verifier expired", func(t *testing.T) {
		f := newManagerFixture(t)
		authURL, err := f.manager.StartAuthorization()
		require.NoError(t, err)
		u, _ := url.Parse(authURL)

		*f.now = f.now.Add(11 * time.Minute)
		ok, err := f.manager.Initialize(context.Background(), url.Values{"code": {"code-1"}, "state": {u.Query().Get("state")}})
		require.False(t, ok)
		require.ErrorIs(t, err, apperrors.ErrMissingVerifier)
	})

	t.Run("provider denied", func(t *testing.T) {
		f := newManagerFixture(t)
		authURL, err := f.manager.StartAuthorization()
		require.NoError(t, err)
		u, _ := url.Parse(authURL)

		ok, err := f.manager.Initialize(context.Background(), url.Values{"error": {"access_denied"}, "state": {u.Query().Get("state")}})
		require.False(t, ok)
		require.ErrorIs(t, err, apperrors.ErrAuthorizationDenied)
		require.Zero(t, f.ephemeral.Len())
	})

	t.Run("bad code still consumes verifier", func(t *testing.T) {
		f := newManagerFixture(t)
		authURL, err := f.manager.StartAuthorization()
		require.NoError(t, err)
		u, _ := url.Parse(authURL)

		ok, err := f.manager.Initialize(context.Background(), url.Values{"code": {"wrong"}, "state": {u.Query().Get("state")}})
		require.False(t, ok)
		require.Error(t, err)
		require.Zero(t, f.ephemeral.Len())
	})
}

func TestManager_ConcurrentFlowsKeepSeparateVerifiers(t *testing.T) {
	f := newManagerFixture(t)

	first, err := f.manager.StartAuthorization()
	require.NoError(t, err)
	second, err := f.manager.StartAuthorization()
	require.NoError(t, err)
	require.Equal(t, 2, f.ephemeral.Len())

	u1, _ := url.Parse(first)
	u2, _ := url.Parse(second)
	require.NotEqual(t, u1.Query().Get("state"), u2.Query().Get("state"))
	require.NotEqual(t, u1.Query().Get("code_challenge"), u2.Query().Get("code_challenge"))

	f.provider.expectCode("code-2", u2.Query().Get("code_challenge"))
	ok, err := f.manager.Initialize(context.Background(), url.Values{"code": {"code-2"}, "state": {u2.Query().Get("state")}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.ephemeral.Len())
}

func TestManager_IsAuthenticatedBufferBoundary(t *testing.T) {
	f := newManagerFixture(t)
	expiresAt := f.now.Add(time.Hour)
	require.NoError(t, f.durable.Set(credentials.KeyAccessToken, "tok"))
	require.NoError(t, f.durable.Set(credentials.KeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10)))

	*f.now = expiresAt.Add(-300000 * time.Millisecond)
	require.False(t, f.manager.IsAuthenticated())

	*f.now = expiresAt.Add(-300001 * time.Millisecond)
	require.True(t, f.manager.IsAuthenticated())
}

func TestManager_SilentRefreshOnInitialize(t *testing.T) {
	f := newManagerFixture(t)
	f.authorize(t)

	*f.now = f.now.Add(4*time.Hour - 4*time.Minute)
	require.False(t, f.manager.IsAuthenticated())

	ok, err := f.manager.Initialize(context.Background(), url.Values{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.provider.refreshCalls)

	rt, _ := f.durable.Get(credentials.KeyRefreshToken)
	require.Equal(t, "refresh-1", rt, "refresh token is not rotated")
	exp, _ := f.durable.Get(credentials.KeyExpiresAt)
	require.Equal(t, strconv.FormatInt(f.now.Add(4*time.Hour).UnixMilli(), 10), exp)
}

func TestManager_RefreshFailureClearsCredentials(t *testing.T) {
	f := newManagerFixture(t)
	f.authorize(t)
	f.provider.failRefresh = true

	*f.now = f.now.Add(5 * time.Hour)
	_, err := f.manager.EnsureFreshCredential(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthorizationExpired)

	for _, key := range []credentials.Key{credentials.KeyAccessToken, credentials.KeyRefreshToken, credentials.KeyExpiresAt} {
		_, ok := f.durable.Get(key)
		require.False(t, ok, "key %s should be cleared", key)
	}

	ok, err := f.manager.Initialize(context.Background(), url.Values{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_EnsureFreshCredential(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		f := newManagerFixture(t)
		_, err := f.manager.EnsureFreshCredential(context.Background())
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("valid token needs no network", func(t *testing.T) {
		f := newManagerFixture(t)
		f.authorize(t)
		tok, err := f.manager.EnsureFreshCredential(context.Background())
		require.NoError(t, err)
		require.Equal(t, "access-1", tok)
		require.Zero(t, f.provider.refreshCalls)
	})

	t.Run("inside buffer refreshes", func(t *testing.T) {
		f := newManagerFixture(t)
		f.authorize(t)
		*f.now = f.now.Add(4*time.Hour - time.Minute)
		tok, err := f.manager.EnsureFreshCredential(context.Background())
		require.NoError(t, err)
		require.Equal(t, "access-2", tok)
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		f := newManagerFixture(t)
		f.provider.noRefresh = true
		f.authorize(t)
		*f.now = f.now.Add(5 * time.Hour)
		_, err := f.manager.EnsureFreshCredential(context.Background())
		require.ErrorIs(t, err, apperrors.ErrAuthorizationExpired)
	})
}

func TestManager_ForceRefresh(t *testing.T) {
	f := newManagerFixture(t)
	f.authorize(t)

	tok, err := f.manager.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", tok)
	require.Equal(t, 1, f.provider.refreshCalls)
}

func TestManager_Disconnect(t *testing.T) {
	f := newManagerFixture(t)
	f.authorize(t)

	require.NoError(t, f.manager.Disconnect(context.Background()))
	require.False(t, f.manager.IsAuthenticated())
	require.False(t, f.manager.HasRefreshCapability())
	require.Equal(t, []string{"Bearer access-1"}, f.provider.revoked)
}

func TestStripAuthParams(t *testing.T) {
	u, err := url.Parse("http://localhost:8080/?code=abc&state=xyz&course=cs101-a")
	require.NoError(t, err)
	require.Equal(t, "/?course=cs101-a", token.StripAuthParams(u))

	u, err = url.Parse("http://localhost:8080/?code=abc&state=xyz")
	require.NoError(t, err)
	require.Equal(t, "/", token.StripAuthParams(u))
}
